// Package analytics computes aggregate expense totals over arbitrary time
// windows, grouped either by category or by a time bucket (day, ISO week,
// calendar month).
package analytics

import (
	"errors"
	"net/url"
	"strconv"
	"time"
)

// GroupBy is the aggregation dimension. The set of values is closed; anything
// else is rejected by ParseRequest before it can reach an aggregator.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByDay      GroupBy = "day"
	GroupByWeek     GroupBy = "week"
	GroupByMonth    GroupBy = "month"
)

var (
	ErrMissingParameter  = errors.New("missing from, to or groupBy")
	ErrInvalidDateFormat = errors.New("invalid date format")
	ErrInvalidGroupBy    = errors.New("invalid groupBy value")
)

// Request is a validated aggregation request. From/To are inclusive on both
// ends. A From after To is not an error; it simply matches nothing.
type Request struct {
	UserID      int64
	From        time.Time
	To          time.Time
	GroupBy     GroupBy
	CategoryIDs []int64 // nil or empty means no category restriction
}

// dateLayouts are the accepted forms for from/to, tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// ParseRequest validates raw query parameters into a Request skeleton.
// The user id is attached separately by the caller from the authenticated
// identity. When a parameter arrives with repeated keys only the first value
// is used.
func ParseRequest(q url.Values) (Request, error) {
	fromStr := q.Get("from")
	toStr := q.Get("to")
	groupBy := q.Get("groupBy")
	if fromStr == "" || toStr == "" || groupBy == "" {
		return Request{}, ErrMissingParameter
	}

	from, err := parseDate(fromStr)
	if err != nil {
		return Request{}, ErrInvalidDateFormat
	}
	to, err := parseDate(toStr)
	if err != nil {
		return Request{}, ErrInvalidDateFormat
	}

	switch GroupBy(groupBy) {
	case GroupByCategory, GroupByDay, GroupByWeek, GroupByMonth:
	default:
		return Request{}, ErrInvalidGroupBy
	}

	return Request{
		From:        from,
		To:          to,
		GroupBy:     GroupBy(groupBy),
		CategoryIDs: NormalizeCategoryFilter(q["categories"]),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// NormalizeCategoryFilter converts raw "categories" values into a set of
// category ids. Entries that do not parse as non-negative base-10 integers
// are silently dropped; there is deliberately no error channel here. An
// empty result means "no restriction", never "match nothing".
func NormalizeCategoryFilter(raw []string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id < 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
