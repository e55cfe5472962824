package http

import (
	"errors"
	"log/slog"
	"net/http"

	"cashflow/internal/analytics"
	applog "cashflow/internal/log"
)

// handleAnalytics runs the aggregation pipeline: validate the raw query,
// select the strategy for the requested grouping, and return uniform
// {key, label, total} rows.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	req, err := analytics.ParseRequest(r.URL.Query())
	switch {
	case errors.Is(err, analytics.ErrMissingParameter):
		writeError(w, http.StatusBadRequest, "Missing from, to or groupBy")
		return
	case errors.Is(err, analytics.ErrInvalidDateFormat):
		writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	case errors.Is(err, analytics.ErrInvalidGroupBy):
		writeError(w, http.StatusBadRequest, "Invalid groupBy value")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = userIDFrom(r.Context())

	rows, err := analytics.New(s.storage, req.GroupBy).Aggregate(r.Context(), req)
	if err != nil {
		slog.ErrorContext(r.Context(), "Aggregation failed",
			applog.FieldError, err,
			applog.FieldUserID, req.UserID,
			applog.FieldGroupBy, string(req.GroupBy))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if rows == nil {
		rows = []analytics.Row{}
	}

	writeData(w, http.StatusOK, rows)
}
