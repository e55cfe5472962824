// Package storage persists users, sessions, categories and expenses in SQLite
// and implements the query surface the analytics engine aggregates over.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cashflow/internal/analytics"
	"cashflow/internal/core"

	_ "modernc.org/sqlite"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// Compile-time check: the repository is the analytics engine's store.
var _ analytics.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// formatTime renders a timestamp in the fixed UTC layout every expenses and
// sessions column uses. Keeping one layout makes BETWEEN and strftime behave.
func formatTime(t time.Time) string {
	return t.UTC().Format(analytics.TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(analytics.TimeLayout, s, time.UTC)
}

// --- users & sessions ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string) (core.User, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)",
		email, passwordHash, formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}

	slog.InfoContext(ctx, "User created", "id", id, "email", email)
	return core.User{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: now.UTC()}, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.User{}, fmt.Errorf("parse user created_at: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		token, userID, formatTime(expiresAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionByToken resolves a session token to its user id and expiry. Expired
// sessions are treated the same as unknown ones.
func (r *SQLiteRepository) SessionByToken(ctx context.Context, token string) (int64, time.Time, error) {
	var (
		userID    int64
		expiresAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM sessions WHERE token = ? AND expires_at > ?",
		token, formatTime(time.Now()),
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, ErrNotFound
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("lookup session: %w", err)
	}
	exp, err := parseTime(expiresAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse session expires_at: %w", err)
	}
	return userID, exp, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and reports how
// many were removed.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// --- categories ---

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CategoryNames implements analytics.Store. Ids without a matching category
// record are simply absent from the map.
func (r *SQLiteRepository) CategoryNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	query := "SELECT id, name FROM categories WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("category names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan category name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Second)

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO expenses (user_id, category_id, amount_cents, note, created_at) VALUES (?, ?, ?, ?, ?)",
		e.UserID, nullableID(e.CategoryID), e.Amount.Cents, e.Note, formatTime(e.CreatedAt),
	)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents)
	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, category_id, amount_cents, note, created_at FROM expenses WHERE id = ?", id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns one user's expenses, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, category_id, amount_cents, note, created_at FROM expenses WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e          core.Expense
		categoryID sql.NullInt64
		createdAt  string
	)
	if err := row.Scan(&e.ID, &e.UserID, &categoryID, &e.Amount.Cents, &e.Note, &createdAt); err != nil {
		return core.Expense{}, err
	}
	if categoryID.Valid {
		e.CategoryID = &categoryID.Int64
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("parse expense created_at: %w", err)
	}
	return e, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// --- analytics store ---

// SumByCategory implements the structured grouping operation of
// analytics.Store. Group order is whatever SQLite's GROUP BY yields; the
// categorical strategy imposes no re-sort.
func (r *SQLiteRepository) SumByCategory(ctx context.Context, userID int64, from, to time.Time, categoryIDs []int64) ([]analytics.CategorySum, error) {
	var b strings.Builder
	b.WriteString("SELECT category_id, SUM(amount_cents) FROM expenses WHERE user_id = ? AND created_at BETWEEN ? AND ?")
	args := []any{userID, formatTime(from), formatTime(to)}
	if len(categoryIDs) > 0 {
		b.WriteString(" AND category_id IN (?")
		b.WriteString(strings.Repeat(",?", len(categoryIDs)-1))
		b.WriteString(")")
		for _, id := range categoryIDs {
			args = append(args, id)
		}
	}
	b.WriteString(" GROUP BY category_id")

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	var sums []analytics.CategorySum
	for rows.Next() {
		var (
			categoryID sql.NullInt64
			total      int64
		)
		if err := rows.Scan(&categoryID, &total); err != nil {
			return nil, fmt.Errorf("scan category sum: %w", err)
		}
		s := analytics.CategorySum{TotalCents: total}
		if categoryID.Valid {
			s.CategoryID = &categoryID.Int64
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// SumByBucket implements the parameterized raw-query operation of
// analytics.Store.
func (r *SQLiteRepository) SumByBucket(ctx context.Context, query string, args []any) ([]analytics.PeriodSum, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by bucket: %w", err)
	}
	defer rows.Close()

	var sums []analytics.PeriodSum
	for rows.Next() {
		var s analytics.PeriodSum
		if err := rows.Scan(&s.Period, &s.TotalCents); err != nil {
			return nil, fmt.Errorf("scan bucket sum: %w", err)
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// --- export tracking ---

// PendingExportExpense is the minimal shape the export worker needs for its
// backup sweep of rows that never made it to the spreadsheet.
type PendingExportExpense struct {
	ID        int64
	CreatedAt time.Time
}

func (r *SQLiteRepository) GetPendingExportExpenses(ctx context.Context, limit int) ([]PendingExportExpense, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, created_at FROM expenses WHERE exported_at IS NULL AND export_error = 0 ORDER BY id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending export expenses: %w", err)
	}
	defer rows.Close()

	var pending []PendingExportExpense
	for rows.Next() {
		var (
			p         PendingExportExpense
			createdAt string
		)
		if err := rows.Scan(&p.ID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse pending created_at: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE expenses SET exported_at = ?, export_error = 0 WHERE id = ?",
		formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as exported", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE expenses SET export_error = 1 WHERE id = ?", id,
	); err != nil {
		return fmt.Errorf("mark expense export error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with export error", "id", id)
	return nil
}
