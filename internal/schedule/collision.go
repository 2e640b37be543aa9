package schedule

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/model"
)

// With one-time slots present the checked window is their min/max date
// padded by windowPadDays; without any, the next lookaheadDays are checked.
const (
	windowPadDays = 30
	lookaheadDays = 90
)

// Input carries everything one collision pass needs. LengthMinutes is the
// proposed session length: one-time slot and recurring occurrence ends are
// recomputed as start+length so the effect of a length change can be
// previewed before committing it. Session intervals are never resized.
type Input struct {
	OneTimeSlots   []model.OneTimeSlot
	RecurringSlots []model.RecurringSlot
	LengthMinutes  int
	Location       *time.Location
	Sessions       []Interval
	Now            time.Time
}

// HasCollision reports whether any two intervals for the mentor overlap on
// the same local calendar date. Intervals are half-open: a slot ending
// exactly when the next one starts is not a collision.
//
// Booked one-time slots are excluded, matching how Expand excludes booked
// dates of a rule: the session created from a booking carries that interval
// into Sessions, and counting both sides would flag every booking against
// itself.
//
// Malformed recurring rules are skipped with a warning; one corrupt rule
// must not block the whole check.
func HasCollision(in Input) bool {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	length := time.Duration(in.LengthMinutes) * time.Minute

	byDate := make(map[string][]Interval)
	add := func(iv Interval) {
		key := iv.DateKey()
		byDate[key] = append(byDate[key], iv)
	}

	var windowStart, windowEnd time.Time
	for _, slot := range in.OneTimeSlots {
		if slot.Booked {
			continue
		}
		start := slot.Start.In(loc)
		iv := Interval{Start: start, End: start.Add(length)}
		add(iv)

		day := dateOnly(start)
		if windowStart.IsZero() || day.Before(windowStart) {
			windowStart = day
		}
		if windowEnd.IsZero() || day.After(windowEnd) {
			windowEnd = day
		}
	}

	if windowStart.IsZero() {
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		windowStart = dateOnly(now.In(loc))
		windowEnd = windowStart.AddDate(0, 0, lookaheadDays)
	} else {
		windowStart = windowStart.AddDate(0, 0, -windowPadDays)
		windowEnd = windowEnd.AddDate(0, 0, windowPadDays)
	}

	for _, rule := range in.RecurringSlots {
		occurrences, err := Expand(rule, windowStart, windowEnd, loc)
		if err != nil {
			log.Warn().Err(err).Str("ruleId", rule.ID).Msg("skipping malformed recurring slot")
			continue
		}
		for _, occ := range occurrences {
			add(Interval{Start: occ.Start, End: occ.Start.Add(length)})
		}
	}

	for _, session := range in.Sessions {
		add(Interval{Start: session.Start.In(loc), End: session.End.In(loc)})
	}

	for _, intervals := range byDate {
		if len(intervals) < 2 {
			continue
		}
		sort.Slice(intervals, func(i, j int) bool {
			return intervals[i].Start.Before(intervals[j].Start)
		})
		latestEnd := intervals[0].End
		for _, iv := range intervals[1:] {
			if iv.Start.Before(latestEnd) {
				return true
			}
			if iv.End.After(latestEnd) {
				latestEnd = iv.End
			}
		}
	}
	return false
}
