package analytics

import (
	"context"
	"fmt"
	"strings"

	"cashflow/internal/core"
)

// bucketExpr maps each time granularity to a fixed SQLite expression producing
// the canonical period string. The expression is the only query fragment that
// varies and it is chosen from this closed table, never from user input; all
// filter values are bound as parameters.
var bucketExpr = map[GroupBy]string{
	GroupByDay:   "strftime('%Y-%m-%d', created_at)",
	GroupByWeek:  "strftime('%G-W%V', created_at)", // ISO year + ISO week, e.g. 2024-W03
	GroupByMonth: "strftime('%Y-%m', created_at)",
}

// bucketAggregator sums per time bucket with a single templated aggregate
// query. The period formats sort lexicographically in chronological order, so
// ORDER BY period is enough.
type bucketAggregator struct {
	store       Store
	granularity GroupBy
}

func (a *bucketAggregator) Aggregate(ctx context.Context, req Request) ([]Row, error) {
	expr, ok := bucketExpr[a.granularity]
	if !ok {
		return nil, fmt.Errorf("no bucket expression for granularity %q", a.granularity)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(expr)
	b.WriteString(" AS period, SUM(amount_cents) AS total FROM expenses")
	b.WriteString(" WHERE user_id = ? AND created_at BETWEEN ? AND ?")
	args := []any{
		req.UserID,
		req.From.UTC().Format(TimeLayout),
		req.To.UTC().Format(TimeLayout),
	}
	if len(req.CategoryIDs) > 0 {
		b.WriteString(" AND category_id IN (?")
		b.WriteString(strings.Repeat(",?", len(req.CategoryIDs)-1))
		b.WriteString(")")
		for _, id := range req.CategoryIDs {
			args = append(args, id)
		}
	}
	b.WriteString(" GROUP BY period ORDER BY period")

	sums, err := a.store.SumByBucket(ctx, b.String(), args)
	if err != nil {
		return nil, fmt.Errorf("sum by %s bucket: %w", a.granularity, err)
	}

	rows := make([]Row, 0, len(sums))
	for _, s := range sums {
		rows = append(rows, Row{
			Key:   s.Period,
			Label: s.Period,
			Total: core.Money{Cents: s.TotalCents}.Units(),
		})
	}
	return rows, nil
}
