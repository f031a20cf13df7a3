package missions

import (
	"fmt"
	"time"
)

// DefaultResetHour is the local hour at which daily missions roll over.
const DefaultResetHour = 9

// Schedule computes daily reset instants.
type Schedule struct {
	Hour     int
	Location *time.Location
}

// NewSchedule returns a schedule resetting at hour in loc. A nil loc means
// time.Local.
func NewSchedule(hour int, loc *time.Location) (Schedule, error) {
	if hour < 0 || hour > 23 {
		return Schedule{}, fmt.Errorf("invalid reset hour: %d", hour)
	}
	if loc == nil {
		loc = time.Local
	}
	return Schedule{Hour: hour, Location: loc}, nil
}

// NextResetAfter returns the first reset instant strictly after now.
func (s Schedule) NextResetAfter(now time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.Hour, 0, 0, 0, loc)
	}
	return next
}

// Expired reports whether a persisted reset instant has been reached.
func (s Schedule) Expired(nextReset, now time.Time) bool {
	return !now.Before(nextReset)
}

// FormatTimeLeft renders a countdown: "HH:MM:SS" below 48 hours, otherwise
// "N Days". Negative durations render as zero.
func FormatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d / time.Hour)
	if hours >= 48 {
		return fmt.Sprintf("%d Days", hours/24)
	}

	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
