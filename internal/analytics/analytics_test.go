package analytics

import (
	"testing"
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

func strptr(s string) *string { return &s }

func testCategorizer() *DeviceCategorizer {
	return NewDeviceCategorizer(map[string][]string{
		"phone":  {"iphone", "galaxy"},
		"laptop": {"macbook", "thinkpad"},
	})
}

func TestCategorizeMatchesKeyword(t *testing.T) {
	c := testCategorizer()

	cases := []struct {
		info string
		want string
	}{
		{"Apple iPhone 13 Pro", "phone"},
		{"MACBOOK air 2020", "laptop"},
		{"Samsung Galaxy S22", "phone"},
		{"Garmin watch", UncategorizedDevice},
		{"", UncategorizedDevice},
	}
	for _, tc := range cases {
		if got := c.Categorize(tc.info); got != tc.want {
			t.Errorf("Categorize(%q) = %q, want %q", tc.info, got, tc.want)
		}
	}
}

func TestCategorizeOverlapIsNameOrdered(t *testing.T) {
	// Two categories sharing a keyword must resolve the same way on every
	// construction, regardless of map iteration order.
	for i := 0; i < 20; i++ {
		c := NewDeviceCategorizer(map[string][]string{
			"tablet":   {"ipad", "pro"},
			"phone":    {"iphone", "pro"},
			"wearable": {"watch"},
		})
		if got := c.Categorize("Apple Pro device"); got != "phone" {
			t.Fatalf("Categorize overlap = %q, want %q", got, "phone")
		}
	}
}

func TestEfficiencyScoreSteps(t *testing.T) {
	cases := []struct {
		avg  float64
		want int
	}{
		{0, 100},
		{120, 100},
		{121, 80},
		{240, 80},
		{241, 60},
		{480, 60},
		{481, 40},
		{960, 40},
		{961, 20},
	}
	for _, tc := range cases {
		if got := EfficiencyScore(tc.avg); got != tc.want {
			t.Errorf("EfficiencyScore(%v) = %d, want %d", tc.avg, got, tc.want)
		}
	}
}

func fixtureTickets() []domain.CanonicalTicket {
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	return []domain.CanonicalTicket{
		{
			SourceInstance: "pr", SourceID: "1",
			DeviceInfo:         "iPhone 12",
			CanonicalStatus:    domain.StatusInProgress,
			AssignedTechnician: strptr("alice"),
			CreatedAt:          base,
			LastSourceUpdateAt: base.Add(2 * time.Hour),
		},
		{
			SourceInstance: "pr", SourceID: "2",
			DeviceInfo:               "MacBook Pro",
			CanonicalStatus:          domain.StatusCompleted,
			AssignedTechnician:       strptr("alice"),
			CreatedAt:                base.Add(time.Hour),
			LastSourceUpdateAt:       base.Add(26 * time.Hour),
			TotalBusinessMinutesOpen: 600,
		},
		{
			SourceInstance: "pr", SourceID: "3",
			DeviceInfo:               "Samsung Galaxy",
			CanonicalStatus:          domain.StatusCompleted,
			AssignedTechnician:       strptr("bob"),
			CreatedAt:                base.Add(3 * time.Hour),
			LastSourceUpdateAt:       base.Add(27 * time.Hour),
			TotalBusinessMinutesOpen: 300,
			IsRework:                 true,
		},
		{
			SourceInstance: "pr", SourceID: "4",
			DeviceInfo:      "unknown widget",
			CanonicalStatus: domain.StatusAwaitingRepair,
			CreatedAt:       base.Add(30 * time.Minute),
		},
	}
}

func fixtureSamples() []domain.WaitTimeSample {
	entered := time.Date(2024, 1, 8, 11, 0, 0, 0, time.UTC)
	return []domain.WaitTimeSample{
		{SourceInstance: "pr", SourceID: "1", Technician: "alice", WaitedMinutes: 60, EnteredActiveAt: entered},
		{SourceInstance: "pr", SourceID: "2", Technician: "alice", WaitedMinutes: 180, EnteredActiveAt: entered},
		{SourceInstance: "pr", SourceID: "3", Technician: "bob", WaitedMinutes: 500, EnteredActiveAt: entered},
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(fixtureTickets(), fixtureSamples())

	if got.TotalTickets != 4 {
		t.Errorf("TotalTickets = %d, want 4", got.TotalTickets)
	}
	if got.CountsByStatus[domain.StatusCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", got.CountsByStatus[domain.StatusCompleted])
	}
	if got.CountsByStatus[domain.StatusInProgress] != 1 {
		t.Errorf("in progress count = %d, want 1", got.CountsByStatus[domain.StatusInProgress])
	}
	if want := 740.0 / 3; got.AvgWaitMinutes != want {
		t.Errorf("AvgWaitMinutes = %v, want %v", got.AvgWaitMinutes, want)
	}
	if got.MedianWaitMinutes != 180 {
		t.Errorf("MedianWaitMinutes = %v, want 180", got.MedianWaitMinutes)
	}
	if got.MinWaitMinutes != 60 || got.MaxWaitMinutes != 500 {
		t.Errorf("min/max = %d/%d, want 60/500", got.MinWaitMinutes, got.MaxWaitMinutes)
	}
	if got.ReworkRate != 0.25 {
		t.Errorf("ReworkRate = %v, want 0.25", got.ReworkRate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil, nil)
	if got.TotalTickets != 0 || got.AvgWaitMinutes != 0 || got.ReworkRate != 0 {
		t.Errorf("empty summary not zero: %+v", got)
	}
}

func TestTechnicianRollups(t *testing.T) {
	got := TechnicianRollups(fixtureTickets(), fixtureSamples())

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Technician != "alice" || got[0].TicketCount != 2 {
		t.Errorf("first rollup = %+v, want alice with 2 tickets", got[0])
	}
	if got[0].AvgWaitMinutes != 120 {
		t.Errorf("alice avg wait = %v, want 120", got[0].AvgWaitMinutes)
	}
	if got[0].EfficiencyScore != 100 {
		t.Errorf("alice efficiency = %d, want 100", got[0].EfficiencyScore)
	}
	if got[1].Technician != "bob" || got[1].EfficiencyScore != 40 {
		t.Errorf("second rollup = %+v, want bob with score 40", got[1])
	}
}

func TestDeviceRollups(t *testing.T) {
	got := DeviceRollups(fixtureTickets(), testCategorizer(), 3)

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Category != "phone" || got[0].TicketCount != 2 {
		t.Errorf("first = %+v, want phone with 2 tickets", got[0])
	}
	// Only the Galaxy ticket is terminal in the phone category.
	if got[0].AvgCompletionMinutes != 300 {
		t.Errorf("phone avg completion = %v, want 300", got[0].AvgCompletionMinutes)
	}
	if got[0].ReworkRate != 0.5 {
		t.Errorf("phone rework rate = %v, want 0.5", got[0].ReworkRate)
	}

	var laptop DeviceRollup
	for _, r := range got {
		if r.Category == "laptop" {
			laptop = r
		}
	}
	if laptop.TicketCount != 1 || laptop.AvgCompletionMinutes != 600 {
		t.Errorf("laptop = %+v, want 1 ticket averaging 600", laptop)
	}
	if len(laptop.TopTechnicians) != 1 || laptop.TopTechnicians[0].Technician != "alice" {
		t.Errorf("laptop top technicians = %+v, want alice", laptop.TopTechnicians)
	}
}

func TestBucketByTime(t *testing.T) {
	tickets := fixtureTickets()
	events := []domain.StatusChangeEvent{
		{
			SourceInstance: "pr", SourceID: "2",
			FromStatus: domain.StatusInProgress,
			ToStatus:   domain.StatusCompleted,
			ChangedAt:  time.Date(2024, 1, 9, 11, 0, 0, 0, time.UTC),
		},
	}

	got := BucketByTime(tickets, events, time.UTC)

	if len(got.Days) != 2 {
		t.Fatalf("days = %d, want 2", len(got.Days))
	}
	if got.Days[0].Date != "2024-01-08" || got.Days[0].Created != 4 {
		t.Errorf("day[0] = %+v, want 2024-01-08 with 4 created", got.Days[0])
	}
	// Ticket 2 completes via its event on the 9th; ticket 3 has no terminal
	// event so completion falls back to its last update, also the 9th.
	if got.Days[1].Date != "2024-01-09" || got.Days[1].Completed != 2 {
		t.Errorf("day[1] = %+v, want 2024-01-09 with 2 completed", got.Days[1])
	}

	hourCounts := make(map[int]int)
	for _, h := range got.Hours {
		hourCounts[h.Hour] = h.Created
	}
	if hourCounts[9] != 2 || hourCounts[10] != 1 || hourCounts[12] != 1 {
		t.Errorf("hour buckets = %+v, want 9h:2 10h:1 12h:1", hourCounts)
	}
}
