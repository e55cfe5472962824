// Package worker mirrors recorded expenses to the spreadsheet export target.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/amqp"
	"cashflow/internal/export"
	"cashflow/internal/storage"
)

// ExportWorker consumes expense.created events and appends the expenses to a
// spreadsheet. A periodic sweep exports rows whose events were lost.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	appender  export.ExpenseAppender
	queue     *amqp.Client
	batchSize int
	interval  time.Duration
}

func NewExportWorker(storage *storage.SQLiteRepository, appender export.ExpenseAppender, queue *amqp.Client, batchSize int, interval time.Duration) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		appender:  appender,
		queue:     queue,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run consumes events and sweeps for pending rows until the context is
// cancelled.
func (w *ExportWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.queue.ConsumeExpenseCreated(ctx, w.HandleExpenseCreated)
	})
	g.Go(func() error {
		return w.sweepLoop(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// HandleExpenseCreated processes a single expense.created event. Returning an
// error requeues the event; permanent failures are marked on the row instead
// so they do not loop forever.
func (w *ExportWorker) HandleExpenseCreated(ctx context.Context, msg *amqp.ExpenseCreatedMessage) error {
	slog.InfoContext(ctx, "Processing expense.created event",
		"id", msg.ID,
		"user_id", msg.UserID)

	err := w.exportExpense(ctx, msg.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.WarnContext(ctx, "Expense vanished before export, dropping event", "id", msg.ID)
		return nil
	case err != nil:
		if markErr := w.storage.MarkExportError(ctx, msg.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", msg.ID, "error", markErr)
		}
		slog.ErrorContext(ctx, "Expense export failed", "id", msg.ID, "error", err)
		return nil
	}
	return nil
}

// ProcessPendingExpenses exports rows that never made it to the spreadsheet.
// This is the backup path for lost AMQP events.
func (w *ExportWorker) ProcessPendingExpenses(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending expense exports", "count", len(pending))
	for _, p := range pending {
		if err := w.exportExpense(ctx, p.ID); err != nil {
			if markErr := w.storage.MarkExportError(ctx, p.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", p.ID, "error", markErr)
			}
			slog.ErrorContext(ctx, "Pending export failed", "id", p.ID, "error", err)
			continue
		}
	}
	return nil
}

func (w *ExportWorker) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPendingExpenses(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending export sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportExpense(ctx context.Context, id int64) error {
	expense, err := w.storage.GetExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	categoryName := ""
	if expense.CategoryID != nil {
		names, err := w.storage.CategoryNames(ctx, []int64{*expense.CategoryID})
		if err != nil {
			return fmt.Errorf("resolve category name: %w", err)
		}
		categoryName = names[*expense.CategoryID]
	}

	ref, err := w.appender.Append(ctx, expense, categoryName)
	if err != nil {
		return fmt.Errorf("append to export target: %w", err)
	}
	if err := w.storage.MarkExported(ctx, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Expense exported", "id", id, "ref", ref)
	return nil
}
