package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Money is a monetary amount in integer cents. All arithmetic and
	// persistence happens in cents; floating point only appears at the
	// serialization edge.
	Money struct {
		Cents int64
	}

	// Expense is a single recorded spend. Immutable after creation; the
	// CreatedAt timestamp is the authoritative ordering and bucketing field.
	Expense struct {
		ID         int64
		UserID     int64
		CategoryID *int64 // nil on legacy records
		Amount     Money
		Note       string
		CreatedAt  time.Time
	}

	// Category is a display label for grouping expenses. Read-only from the
	// analytics engine's perspective.
	Category struct {
		ID   int64
		Name string
	}

	// User owns expenses. Password handling lives in internal/auth.
	User struct {
		ID           int64
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNoteTooLong   = errors.New("note too long (max 200 characters)")
	ErrEmptyEmail    = errors.New("empty email")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Note) > 200 {
		return ErrNoteTooLong
	}
	if e.CategoryID != nil && *e.CategoryID < 0 {
		return errors.New("invalid category id")
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}
