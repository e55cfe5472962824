package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cashflow/internal/auth"
	applog "cashflow/internal/log"
	"cashflow/internal/storage"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

// cachedSession is the cache value for a token. Carrying the expiry makes
// cache hits honor the session lifetime exactly instead of lagging behind the
// database by the cache TTL.
type cachedSession struct {
	userID    int64
	expiresAt time.Time
}

// requireAuth resolves the Bearer token to a user id and stores it on the
// request context. Token lookups are cached so repeated calls with the same
// session skip the database.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing authorization token")
			return
		}

		sess, ok := s.sessionCache.Get(token)
		if ok && !time.Now().Before(sess.expiresAt) {
			s.sessionCache.Delete(token)
			ok = false
		}
		if !ok {
			userID, expiresAt, err := s.storage.SessionByToken(r.Context(), token)
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "Session lookup failed", applog.FieldError, err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			sess = cachedSession{userID: userID, expiresAt: expiresAt}
			s.sessionCache.Set(token, sess)
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, sess.userID)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// userIDFrom returns the authenticated user id placed by requireAuth.
func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(contextKeyUserID).(int64)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		slog.ErrorContext(r.Context(), "Password hashing failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := s.storage.CreateUser(r.Context(), req.Email, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User creation failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	session, err := s.openSession(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Session creation failed", applog.FieldError, err, applog.FieldUserID, user.ID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	session.Email = user.Email

	writeData(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	user, err := s.storage.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "User lookup failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	session, err := s.openSession(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Session creation failed", applog.FieldError, err, applog.FieldUserID, user.ID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	session.Email = user.Email

	writeData(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	token := bearerToken(r)
	if err := s.storage.DeleteSession(r.Context(), token); err != nil {
		slog.ErrorContext(r.Context(), "Session deletion failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.sessionCache.Delete(token)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) openSession(ctx context.Context, userID int64) (sessionResponse, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return sessionResponse{}, err
	}
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.storage.CreateSession(ctx, token, userID, expiresAt); err != nil {
		return sessionResponse{}, err
	}
	s.sessionCache.Set(token, cachedSession{userID: userID, expiresAt: expiresAt})
	return sessionResponse{Token: token, UserID: userID}, nil
}
