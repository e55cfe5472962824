// Package http exposes the JSON API: auth, expense recording, the category
// taxonomy and the analytics aggregation endpoint.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cashflow/internal/cache"
	"cashflow/internal/services"
	"cashflow/internal/storage"
)

const (
	rateLimitPerMinute = 60
	sessionCacheSize   = 1000
	// Entries carry the session's own expiry; this TTL only bounds how long an
	// idle token stays resident.
	sessionCacheTTL = 5 * time.Minute
)

type Server struct {
	http.Server

	storage  *storage.SQLiteRepository
	expenses *services.ExpenseService

	rateLimiter  *rateLimiter
	sessionCache *cache.LRUCache[cachedSession]
	cacheManager *cache.Manager
	sessionTTL   time.Duration
	bcryptCost   int

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, repo *storage.SQLiteRepository, expenses *services.ExpenseService, sessionTTL time.Duration, bcryptCost int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		storage:      repo,
		expenses:     expenses,
		rateLimiter:  newRateLimiter(rateLimitPerMinute, time.Minute),
		sessionCache: cache.NewLRUCache[cachedSession](sessionCacheSize, sessionCacheTTL),
		cacheManager: cache.NewManager(),
		sessionTTL:   sessionTTL,
		bcryptCost:   bcryptCost,
	}

	s.cacheManager.Register(s.sessionCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/auth/register", s.withMiddleware(s.handleRegister))
	mux.HandleFunc("/auth/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("/auth/logout", s.withMiddleware(s.requireAuth(s.handleLogout)))

	mux.HandleFunc("/expenses", s.withMiddleware(s.requireAuth(s.handleExpenses)))
	mux.HandleFunc("/categories", s.withMiddleware(s.requireAuth(s.handleCategories)))
	mux.HandleFunc("/analytics/expenses", s.withMiddleware(s.requireAuth(s.handleAnalytics)))

	return s
}

// Shutdown stops the cleanup goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
