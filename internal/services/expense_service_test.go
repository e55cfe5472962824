package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/storage"
)

func newTestService(t *testing.T) (*ExpenseService, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	// No AMQP client in tests; publishing is best-effort anyway.
	return NewExpenseService(repo, nil), repo
}

func TestRecordExpense(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "svc@example.com", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	saved, err := svc.RecordExpense(ctx, core.Expense{
		UserID:    u.ID,
		Amount:    core.Money{Cents: 999},
		Note:      "groceries",
		CreatedAt: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	listed, err := svc.ListExpenses(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Amount.Cents != 999 {
		t.Fatalf("unexpected list result: %+v", listed)
	}
}

func TestRecordExpenseRejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordExpense(context.Background(), core.Expense{UserID: 1, Amount: core.Money{Cents: 0}})
	if err == nil {
		t.Fatal("expected validation error for zero amount")
	}
}

func TestCloseWithNilComponents(t *testing.T) {
	svc := &ExpenseService{}
	if err := svc.Close(); err != nil {
		t.Fatalf("close should tolerate nil components: %v", err)
	}
}
