package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/brandon/mailcache/internal/remote"
)

// Request validation failures are configuration errors: they surface to the
// caller immediately and are never retried.
var (
	ErrConflictingRange = errors.New("cache: days and an explicit date range cannot both be set")
	ErrInvalidDate      = errors.New("cache: invalid date")
)

// defaultRangeDays is used when a request specifies neither a range nor a
// day count.
const defaultRangeDays = 30

// FetchRequest describes one cache-synchronized retrieval: a date range
// (either explicit or as a trailing day count), filter predicates, an
// optional result cap, and flags for whether text content and derived
// metrics are required.
type FetchRequest struct {
	StartDate time.Time
	EndDate   time.Time
	// Days, when > 0, selects the trailing N days ending now. Mutually
	// exclusive with an explicit range.
	Days  int
	Limit int

	Filters        remote.Filters
	IncludeText    bool
	IncludeMetrics bool
}

// normalize resolves the request into a concrete [start, end] range,
// rejecting conflicting parameters. Reversed explicit bounds are swapped,
// mirroring the range query's behavior.
func (r *FetchRequest) normalize(now time.Time) (start, end time.Time, err error) {
	explicit := !r.StartDate.IsZero() || !r.EndDate.IsZero()

	switch {
	case r.Days > 0 && explicit:
		return start, end, ErrConflictingRange
	case r.Days > 0:
		end = now
		start = now.AddDate(0, 0, -r.Days)
	case explicit:
		start, end = r.StartDate, r.EndDate
		if start.IsZero() {
			start = end
		}
		if end.IsZero() {
			end = start
		}
		if start.After(end) {
			start, end = end, start
		}
	default:
		end = now
		start = now.AddDate(0, 0, -defaultRangeDays)
	}
	return start, end, nil
}

// ParseDate parses a strict YYYY-MM-DD date for request boundaries.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return t, nil
}
