// Package export defines the outbound ports for mirroring recorded expenses
// to an external spreadsheet.
package export

import (
	"context"

	"cashflow/internal/core"
)

// ExpenseAppender appends one expense row to the export target and returns a
// reference to where it landed.
type ExpenseAppender interface {
	Append(ctx context.Context, e core.Expense, categoryName string) (rowRef string, err error)
}
