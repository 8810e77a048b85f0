package calendar

import (
	"testing"
	"time"
)

func testCalendar(t *testing.T) *BusinessCalendar {
	t.Helper()
	cal, err := New(Settings{
		FirstWeekday: time.Monday,
		LastWeekday:  time.Friday,
		DayStart:     "08:00",
		DayEnd:       "18:00",
		Timezone:     "UTC",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cal
}

// 2024-01-01 is a Monday.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func TestBusinessMinutes_ReversedInterval(t *testing.T) {
	cal := testCalendar(t)
	got := cal.BusinessMinutesBetween(mondayAt(15, 0), mondayAt(9, 0))
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestBusinessMinutes_WithinOneDay(t *testing.T) {
	cal := testCalendar(t)
	got := cal.BusinessMinutesBetween(mondayAt(9, 0), mondayAt(15, 0))
	if got != 360 {
		t.Errorf("got %d, want 360", got)
	}
}

func TestBusinessMinutes_EntirelyOutsideHours(t *testing.T) {
	cal := testCalendar(t)
	got := cal.BusinessMinutesBetween(mondayAt(19, 0), mondayAt(22, 0))
	if got != 0 {
		t.Errorf("evening interval: got %d, want 0", got)
	}

	// 2024-01-06 is a Saturday.
	satStart := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	satEnd := time.Date(2024, 1, 6, 17, 0, 0, 0, time.UTC)
	got = cal.BusinessMinutesBetween(satStart, satEnd)
	if got != 0 {
		t.Errorf("weekend interval: got %d, want 0", got)
	}
}

func TestBusinessMinutes_AcrossWeekend(t *testing.T) {
	cal := testCalendar(t)
	// Friday 2024-01-05 16:00 through Monday 2024-01-08 10:00:
	// Friday 16:00-18:00 (120) + Monday 08:00-10:00 (120).
	start := time.Date(2024, 1, 5, 16, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	got := cal.BusinessMinutesBetween(start, end)
	if got != 240 {
		t.Errorf("got %d, want 240", got)
	}
}

func TestBusinessMinutes_MultipleFullDays(t *testing.T) {
	cal := testCalendar(t)
	// Monday 07:00 to Wednesday 19:00 covers three full 600-minute days.
	start := mondayAt(7, 0)
	end := time.Date(2024, 1, 3, 19, 0, 0, 0, time.UTC)
	got := cal.BusinessMinutesBetween(start, end)
	if got != 1800 {
		t.Errorf("got %d, want 1800", got)
	}
}

func TestBusinessMinutes_Additivity(t *testing.T) {
	cal := testCalendar(t)
	a := time.Date(2024, 1, 4, 11, 30, 0, 0, time.UTC) // Thursday
	b := time.Date(2024, 1, 5, 17, 15, 0, 0, time.UTC) // Friday
	c := time.Date(2024, 1, 9, 9, 45, 0, 0, time.UTC)  // Tuesday

	sum := cal.BusinessMinutesBetween(a, b) + cal.BusinessMinutesBetween(b, c)
	whole := cal.BusinessMinutesBetween(a, c)
	if sum != whole {
		t.Errorf("additivity violated: %d + %d != %d", cal.BusinessMinutesBetween(a, b), cal.BusinessMinutesBetween(b, c), whole)
	}
}

func TestBusinessMinutes_AdditivityAtSubMinuteSplit(t *testing.T) {
	cal := testCalendar(t)
	// Source timestamps carry seconds; splitting an interval mid-minute
	// must not lose or invent a minute.
	a := mondayAt(9, 0)
	b := time.Date(2024, 1, 1, 9, 0, 30, 0, time.UTC)
	c := mondayAt(9, 2)

	ab := cal.BusinessMinutesBetween(a, b)
	bc := cal.BusinessMinutesBetween(b, c)
	whole := cal.BusinessMinutesBetween(a, c)
	if ab+bc != whole {
		t.Errorf("additivity violated: %d + %d != %d", ab, bc, whole)
	}
	if whole != 2 {
		t.Errorf("whole interval: got %d, want 2", whole)
	}
}

func TestBusinessMinutes_SubMinuteInterval(t *testing.T) {
	cal := testCalendar(t)
	start := time.Date(2024, 1, 1, 9, 0, 10, 0, time.UTC)
	end := time.Date(2024, 1, 1, 9, 0, 50, 0, time.UTC)
	if got := cal.BusinessMinutesBetween(start, end); got != 0 {
		t.Errorf("sub-minute interval: got %d, want 0", got)
	}
}

func TestIsWithinBusinessHours(t *testing.T) {
	cal := testCalendar(t)
	if !cal.IsWithinBusinessHours(mondayAt(8, 0)) {
		t.Error("08:00 Monday should be within business hours")
	}
	if cal.IsWithinBusinessHours(mondayAt(18, 0)) {
		t.Error("18:00 Monday should be outside business hours")
	}
	if cal.IsWithinBusinessHours(time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)) {
		t.Error("Sunday noon should be outside business hours")
	}
}

func TestNew_Validation(t *testing.T) {
	base := Settings{
		FirstWeekday: time.Monday,
		LastWeekday:  time.Friday,
		DayStart:     "08:00",
		DayEnd:       "18:00",
		Timezone:     "UTC",
	}

	bad := base
	bad.Timezone = "Mars/Olympus"
	if _, err := New(bad); err == nil {
		t.Error("expected error for bogus timezone")
	}

	bad = base
	bad.DayEnd = "07:00"
	if _, err := New(bad); err == nil {
		t.Error("expected error for end before start")
	}

	bad = base
	bad.DayStart = "8am"
	if _, err := New(bad); err == nil {
		t.Error("expected error for malformed clock time")
	}
}
