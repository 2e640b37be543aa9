// Package schedule holds the pure scheduling domain: interval math,
// recurring rule expansion and collision detection. Nothing in this package
// touches the database or the clock; callers inject time and location.
package schedule

import (
	"time"

	"github.com/healthy-mentoring/server-go/internal/model"
)

// Interval is a half-open time range [Start, End). Both endpoints are
// expected to be in the same location.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints (a.End == b.Start) do not count as an overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// DateKey returns the local calendar date of the interval's start,
// formatted as "2006-01-02". Collisions are only checked between
// intervals sharing a date key.
func (iv Interval) DateKey() string {
	return iv.Start.Format(model.DateLayout)
}

// dateOnly truncates t to midnight in its own location.
func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
