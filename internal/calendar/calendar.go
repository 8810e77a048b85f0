// Package calendar converts absolute time intervals into business minutes
// under a fixed work-week and work-day definition. It is pure and
// deterministic; every wait and efficiency metric in the system is built on
// it.
package calendar

import (
	"fmt"
	"time"
)

// BusinessCalendar holds a validated work-week and work-day window. The
// work week is a contiguous weekday span (typically Monday through Friday)
// and the work day a single contiguous clock-time window in the calendar's
// location.
type BusinessCalendar struct {
	firstWeekday time.Weekday
	lastWeekday  time.Weekday
	startMinute  int // minutes after midnight
	endMinute    int
	location     *time.Location
}

// Settings describes the configurable shape of a calendar.
type Settings struct {
	FirstWeekday time.Weekday
	LastWeekday  time.Weekday
	DayStart     string // "15:04" clock time
	DayEnd       string
	Timezone     string
}

// New validates settings and builds a calendar. Invalid settings are a
// startup-fatal condition for callers: a bad window silently corrupts every
// duration computed downstream.
func New(s Settings) (*BusinessCalendar, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
	}
	start, err := parseClock(s.DayStart)
	if err != nil {
		return nil, fmt.Errorf("invalid work day start %q: %w", s.DayStart, err)
	}
	end, err := parseClock(s.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("invalid work day end %q: %w", s.DayEnd, err)
	}
	if end <= start {
		return nil, fmt.Errorf("work day end %q must be after start %q", s.DayEnd, s.DayStart)
	}
	if s.LastWeekday < s.FirstWeekday {
		return nil, fmt.Errorf("work week last day %s before first day %s", s.LastWeekday, s.FirstWeekday)
	}
	return &BusinessCalendar{
		firstWeekday: s.FirstWeekday,
		lastWeekday:  s.LastWeekday,
		startMinute:  start,
		endMinute:    end,
		location:     loc,
	}, nil
}

// Location returns the calendar's time zone.
func (c *BusinessCalendar) Location() *time.Location {
	return c.location
}

// BusinessMinutesBetween returns the whole minutes of [start, end] that
// fall inside the work week and daily window. end <= start yields 0.
// Endpoints are snapped to whole minutes first, so counts land on a fixed
// grid and splitting an interval at any point sums to the whole:
// BusinessMinutesBetween(a,b) + BusinessMinutesBetween(b,c) equals
// BusinessMinutesBetween(a,c) for a <= b <= c.
func (c *BusinessCalendar) BusinessMinutesBetween(start, end time.Time) int {
	start = start.In(c.location).Truncate(time.Minute)
	end = end.In(c.location).Truncate(time.Minute)
	if !end.After(start) {
		return 0
	}

	total := 0
	// Walk day by day, intersecting [start, end] with each day's window.
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.location)
	for day.Before(end) {
		if c.isWorkday(day.Weekday()) {
			windowStart := day.Add(time.Duration(c.startMinute) * time.Minute)
			windowEnd := day.Add(time.Duration(c.endMinute) * time.Minute)
			lo := maxTime(start, windowStart)
			hi := minTime(end, windowEnd)
			if hi.After(lo) {
				total += int(hi.Sub(lo) / time.Minute)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

// IsWithinBusinessHours reports whether the instant falls inside the
// working window.
func (c *BusinessCalendar) IsWithinBusinessHours(t time.Time) bool {
	t = t.In(c.location)
	if !c.isWorkday(t.Weekday()) {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= c.startMinute && minute < c.endMinute
}

func (c *BusinessCalendar) isWorkday(d time.Weekday) bool {
	return d >= c.firstWeekday && d <= c.lastWeekday
}

func parseClock(val string) (int, error) {
	t, err := time.Parse("15:04", val)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
