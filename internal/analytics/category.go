package analytics

import (
	"context"
	"fmt"

	"cashflow/internal/core"
)

// missingCategoryLabel stands in for category ids that no longer resolve to a
// category record (dangling or legacy references).
const missingCategoryLabel = "—"

// categoryAggregator sums per category via the store's structured grouping
// operation, then joins display labels in a second lookup. Row order is
// whatever the store's GROUP BY returns.
type categoryAggregator struct {
	store Store
}

func (a *categoryAggregator) Aggregate(ctx context.Context, req Request) ([]Row, error) {
	sums, err := a.store.SumByCategory(ctx, req.UserID, req.From, req.To, req.CategoryIDs)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}

	var ids []int64
	for _, s := range sums {
		if s.CategoryID != nil {
			ids = append(ids, *s.CategoryID)
		}
	}

	names := map[int64]string{}
	if len(ids) > 0 {
		names, err = a.store.CategoryNames(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve category names: %w", err)
		}
	}

	rows := make([]Row, 0, len(sums))
	for _, s := range sums {
		row := Row{Label: missingCategoryLabel, Total: core.Money{Cents: s.TotalCents}.Units()}
		if s.CategoryID != nil {
			row.Key = *s.CategoryID
			if name, ok := names[*s.CategoryID]; ok {
				row.Label = name
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
