package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Date and clock-time layouts used inside the availability document.
// Dates are calendar dates in the mentor's timezone; clock times are
// local times without a date.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// OneTimeSlot is a concrete bookable interval. Start and End are stored
// in UTC; the mentor's timezone only matters when checking collisions.
type OneTimeSlot struct {
	ID            string    `json:"id"`
	Type          SlotType  `json:"type"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	LengthMinutes int       `json:"lengthMinutes"`
	Booked        bool      `json:"booked"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecurringSlot is a recurrence rule. StartTime/EndTime are local clock
// times ("15:04"); StartDate, SkipDates and BookedDates are local calendar
// dates ("2006-01-02"). The rule is forward-only: no occurrence is ever
// produced before StartDate.
type RecurringSlot struct {
	ID          string         `json:"id"`
	Recurrence  RecurrenceType `json:"recurrence"`
	Weekdays    []time.Weekday `json:"weekdays,omitempty"`
	DayOfMonth  int            `json:"dayOfMonth,omitempty"`
	StartTime   string         `json:"startTime"`
	EndTime     string         `json:"endTime"`
	StartDate   string         `json:"startDate,omitempty"`
	SkipDates   []string       `json:"skipDates,omitempty"`
	BookedDates []string       `json:"bookedDates,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// SameShape reports whether two rules produce the same occurrence pattern.
// Editing a rule into a different shape invalidates its skip/booked dates.
func (r RecurringSlot) SameShape(other RecurringSlot) bool {
	return r.Recurrence == other.Recurrence &&
		r.StartTime == other.StartTime &&
		r.EndTime == other.EndTime
}

// ExcludesDate reports whether the given local date string is excluded from
// expansion, either skipped or already booked.
func (r RecurringSlot) ExcludesDate(date string) bool {
	for _, d := range r.SkipDates {
		if d == date {
			return true
		}
	}
	for _, d := range r.BookedDates {
		if d == date {
			return true
		}
	}
	return false
}

type OneTimeSlots []OneTimeSlot

func (s OneTimeSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *OneTimeSlots) Scan(src any) error {
	return scanJSON(src, s)
}

type RecurringSlots []RecurringSlot

func (s RecurringSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *RecurringSlots) Scan(src any) error {
	return scanJSON(src, s)
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported scan type %T for JSON column", src)
	}
}
