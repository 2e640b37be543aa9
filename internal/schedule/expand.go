package schedule

import (
	"fmt"
	"time"

	"github.com/healthy-mentoring/server-go/internal/model"
)

// Expand turns a recurring rule into concrete occurrences for every local
// date in [windowStart, windowEnd] (inclusive, dates taken in loc). It is a
// pure function of its inputs: same rule and window, same occurrences.
//
// Dates before the rule's start date never produce occurrences, no matter
// how the rule was edited later. Skipped and already-booked dates are
// excluded. A malformed rule (unparseable clock times, missing weekday
// list, day-of-month out of range) yields an error; the caller decides
// whether to skip the rule or fail.
func Expand(rule model.RecurringSlot, windowStart, windowEnd time.Time, loc *time.Location) ([]Interval, error) {
	startClock, err := time.Parse(model.TimeLayout, rule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("rule %s: bad start time %q: %w", rule.ID, rule.StartTime, err)
	}
	endClock, err := time.Parse(model.TimeLayout, rule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("rule %s: bad end time %q: %w", rule.ID, rule.EndTime, err)
	}
	if !endClock.After(startClock) {
		return nil, fmt.Errorf("rule %s: end time %q not after start time %q", rule.ID, rule.EndTime, rule.StartTime)
	}

	switch rule.Recurrence {
	case model.RecurrenceDaily:
	case model.RecurrenceWeekly:
		if len(rule.Weekdays) == 0 {
			return nil, fmt.Errorf("rule %s: weekly rule has no weekdays", rule.ID)
		}
	case model.RecurrenceMonthly:
		if rule.DayOfMonth < 1 || rule.DayOfMonth > 31 {
			return nil, fmt.Errorf("rule %s: day of month %d out of range", rule.ID, rule.DayOfMonth)
		}
	default:
		return nil, fmt.Errorf("rule %s: unknown recurrence %q", rule.ID, rule.Recurrence)
	}

	var startDate time.Time
	if rule.StartDate != "" {
		startDate, err = time.ParseInLocation(model.DateLayout, rule.StartDate, loc)
		if err != nil {
			return nil, fmt.Errorf("rule %s: bad start date %q: %w", rule.ID, rule.StartDate, err)
		}
	}

	var out []Interval
	for d := dateOnly(windowStart.In(loc)); !d.After(windowEnd.In(loc)); d = d.AddDate(0, 0, 1) {
		if !startDate.IsZero() && d.Before(startDate) {
			continue
		}
		if !matchesDate(rule, d) {
			continue
		}
		if rule.ExcludesDate(d.Format(model.DateLayout)) {
			continue
		}
		out = append(out, Interval{
			Start: atClock(d, startClock),
			End:   atClock(d, endClock),
		})
	}
	return out, nil
}

// OccursOn reports whether the rule generates an occurrence on the local
// date d, applying the same start-date and pattern checks Expand does.
// Skip and booked exclusions are not consulted; callers use ExcludesDate
// for those. A malformed start date yields an error.
func OccursOn(rule model.RecurringSlot, d time.Time) (bool, error) {
	if rule.StartDate != "" {
		startDate, err := time.ParseInLocation(model.DateLayout, rule.StartDate, d.Location())
		if err != nil {
			return false, fmt.Errorf("rule %s: bad start date %q: %w", rule.ID, rule.StartDate, err)
		}
		if dateOnly(d).Before(startDate) {
			return false, nil
		}
	}
	return matchesDate(rule, d), nil
}

func matchesDate(rule model.RecurringSlot, d time.Time) bool {
	switch rule.Recurrence {
	case model.RecurrenceDaily:
		return true
	case model.RecurrenceWeekly:
		for _, wd := range rule.Weekdays {
			if d.Weekday() == wd {
				return true
			}
		}
		return false
	case model.RecurrenceMonthly:
		last := daysInMonth(d.Year(), d.Month())
		if rule.DayOfMonth > last {
			// Clamp, don't skip: a rule on the 31st fires on the last
			// day of shorter months.
			return d.Day() == last
		}
		return d.Day() == rule.DayOfMonth
	}
	return false
}

func atClock(date time.Time, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, date.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
