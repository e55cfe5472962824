package analytics

import (
	"context"
	"time"
)

// TimeLayout is the format expense timestamps are persisted in. Storing and
// binding timestamps with one fixed UTC layout keeps BETWEEN comparisons and
// strftime bucketing consistent.
const TimeLayout = "2006-01-02 15:04:05"

// Row is one aggregation result bucket. Key is a category id (number) for the
// categorical strategy, or the canonical period string for time buckets; it is
// null for expenses carrying no category at all.
type Row struct {
	Key   any     `json:"key"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// CategorySum is a per-category total as returned by the store's structured
// grouping operation. CategoryID is nil for legacy expenses without one.
type CategorySum struct {
	CategoryID *int64
	TotalCents int64
}

// PeriodSum is a per-bucket total as returned by the store's raw aggregate
// query.
type PeriodSum struct {
	Period     string
	TotalCents int64
}

// Store is the persistence surface the aggregators run against.
type Store interface {
	// SumByCategory sums expense amounts per category for one user within the
	// inclusive [from, to] range, optionally restricted to categoryIDs.
	SumByCategory(ctx context.Context, userID int64, from, to time.Time, categoryIDs []int64) ([]CategorySum, error)

	// SumByBucket executes a parameter-bound aggregate query producing
	// (period, total) rows. The query text is built by the time-bucket
	// aggregator; every filter value travels in args.
	SumByBucket(ctx context.Context, query string, args []any) ([]PeriodSum, error)

	// CategoryNames resolves display names for the given category ids.
	// Missing ids are simply absent from the result map.
	CategoryNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Aggregator turns a validated request into (bucket, total) rows. Exactly one
// implementation runs per request.
type Aggregator interface {
	Aggregate(ctx context.Context, req Request) ([]Row, error)
}

// New selects the aggregation strategy for the requested grouping dimension.
// ParseRequest guarantees the dimension is one of the four known values.
func New(store Store, groupBy GroupBy) Aggregator {
	if groupBy == GroupByCategory {
		return &categoryAggregator{store: store}
	}
	return &bucketAggregator{store: store, granularity: groupBy}
}
