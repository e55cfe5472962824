package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

type createExpenseRequest struct {
	// Amount is a decimal string of units, e.g. 12.50. json.Number keeps the
	// literal intact so no float rounding happens before cent conversion.
	Amount     json.Number `json:"amount"`
	CategoryID *int64      `json:"categoryId"`
	Note       string      `json:"note"`
	CreatedAt  string      `json:"createdAt"` // optional, RFC3339 or YYYY-MM-DD
}

type expenseResponse struct {
	ID         int64   `json:"id"`
	CategoryID *int64  `json:"categoryId"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:         e.ID,
		CategoryID: e.CategoryID,
		Amount:     e.Amount.Units(),
		Note:       e.Note,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleExpenses serves GET (list own expenses) and POST (record a new one).
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExpenses(w, r)
	case http.MethodPost:
		s.createExpense(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed.Error())
	}
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.expenses.ListExpenses(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense listing failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	var createdAt time.Time
	if v := strings.TrimSpace(req.CreatedAt); v != "" {
		createdAt, err = parseTimestamp(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format")
			return
		}
	}

	expense := core.Expense{
		UserID:     userIDFrom(r.Context()),
		CategoryID: req.CategoryID,
		Amount:     core.Money{Cents: cents},
		Note:       strings.TrimSpace(req.Note),
		CreatedAt:  createdAt,
	}
	if err := expense.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.expenses.RecordExpense(r.Context(), expense)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense creation failed",
			applog.FieldError, err,
			applog.FieldUserID, expense.UserID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeData(w, http.StatusCreated, toExpenseResponse(saved))
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// handleCategories lists the fixed category taxonomy.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	categories, err := s.storage.ListCategories(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Category listing failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeData(w, http.StatusOK, out)
}
