// Package analytics produces rollups over reconciled tickets, status
// history, and wait-time samples. Every aggregation is a pure function of
// its inputs so it can be tested against fixture data; "now" is passed in
// explicitly where age matters.
package analytics

import (
	"sort"
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// DepartmentSummary is the department-level rollup.
type DepartmentSummary struct {
	TotalTickets      int                            `json:"total_tickets"`
	CountsByStatus    map[domain.CanonicalStatus]int `json:"counts_by_status"`
	AvgWaitMinutes    float64                        `json:"avg_wait_minutes"`
	MedianWaitMinutes float64                        `json:"median_wait_minutes"`
	MinWaitMinutes    int                            `json:"min_wait_minutes"`
	MaxWaitMinutes    int                            `json:"max_wait_minutes"`
	ReworkRate        float64                        `json:"rework_rate"`
}

// TechnicianRollup summarizes one technician's load and responsiveness.
type TechnicianRollup struct {
	Technician      string  `json:"technician"`
	TicketCount     int     `json:"ticket_count"`
	AvgWaitMinutes  float64 `json:"avg_wait_minutes"`
	EfficiencyScore int     `json:"efficiency_score"`
}

// TechnicianVolume pairs a technician with a ticket count.
type TechnicianVolume struct {
	Technician  string `json:"technician"`
	TicketCount int    `json:"ticket_count"`
}

// DeviceRollup summarizes one inferred device category.
type DeviceRollup struct {
	Category             string             `json:"category"`
	TicketCount          int                `json:"ticket_count"`
	AvgCompletionMinutes float64            `json:"avg_completion_minutes"`
	ReworkRate           float64            `json:"rework_rate"`
	TopTechnicians       []TechnicianVolume `json:"top_technicians"`
}

// DayBucket counts activity for one calendar day.
type DayBucket struct {
	Date      string `json:"date"` // YYYY-MM-DD in the bucket location
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// HourBucket counts ticket creation for one hour of day across the window.
type HourBucket struct {
	Hour    int `json:"hour"`
	Created int `json:"created"`
}

// TimeBuckets groups the time-based rollups.
type TimeBuckets struct {
	Days  []DayBucket  `json:"days"`
	Hours []HourBucket `json:"hours"`
}

// EfficiencyScore maps an average wait to a fixed step score. The steps
// are two, four, eight and sixteen business hours.
func EfficiencyScore(avgWaitMinutes float64) int {
	switch {
	case avgWaitMinutes <= 120:
		return 100
	case avgWaitMinutes <= 240:
		return 80
	case avgWaitMinutes <= 480:
		return 60
	case avgWaitMinutes <= 960:
		return 40
	default:
		return 20
	}
}

// Summarize builds the department-level rollup.
func Summarize(tickets []domain.CanonicalTicket, samples []domain.WaitTimeSample) DepartmentSummary {
	summary := DepartmentSummary{
		TotalTickets:   len(tickets),
		CountsByStatus: make(map[domain.CanonicalStatus]int),
	}
	reworked := 0
	for _, t := range tickets {
		summary.CountsByStatus[t.CanonicalStatus]++
		if t.IsRework {
			reworked++
		}
	}
	if len(tickets) > 0 {
		summary.ReworkRate = float64(reworked) / float64(len(tickets))
	}

	if len(samples) == 0 {
		return summary
	}
	waits := make([]int, 0, len(samples))
	total := 0
	for _, s := range samples {
		waits = append(waits, s.WaitedMinutes)
		total += s.WaitedMinutes
	}
	sort.Ints(waits)
	summary.AvgWaitMinutes = float64(total) / float64(len(waits))
	summary.MedianWaitMinutes = median(waits)
	summary.MinWaitMinutes = waits[0]
	summary.MaxWaitMinutes = waits[len(waits)-1]
	return summary
}

// TechnicianRollups builds per-technician summaries from assigned tickets
// and wait samples, sorted by ticket count descending.
func TechnicianRollups(tickets []domain.CanonicalTicket, samples []domain.WaitTimeSample) []TechnicianRollup {
	counts := make(map[string]int)
	for _, t := range tickets {
		if t.AssignedTechnician == nil || *t.AssignedTechnician == "" {
			continue
		}
		counts[*t.AssignedTechnician]++
	}

	waitTotals := make(map[string]int)
	waitCounts := make(map[string]int)
	for _, s := range samples {
		waitTotals[s.Technician] += s.WaitedMinutes
		waitCounts[s.Technician]++
		if _, ok := counts[s.Technician]; !ok && s.Technician != "unassigned" {
			// A technician may appear only in samples when their assigned
			// tickets fall outside the ticket window.
			counts[s.Technician] = 0
		}
	}

	rollups := make([]TechnicianRollup, 0, len(counts))
	for tech, count := range counts {
		r := TechnicianRollup{Technician: tech, TicketCount: count}
		if n := waitCounts[tech]; n > 0 {
			r.AvgWaitMinutes = float64(waitTotals[tech]) / float64(n)
		}
		r.EfficiencyScore = EfficiencyScore(r.AvgWaitMinutes)
		rollups = append(rollups, r)
	}
	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].TicketCount != rollups[j].TicketCount {
			return rollups[i].TicketCount > rollups[j].TicketCount
		}
		return rollups[i].Technician < rollups[j].Technician
	})
	return rollups
}

// DeviceRollups groups tickets by inferred device category, sorted by
// ticket count descending. Completion time averages only terminal tickets.
func DeviceRollups(tickets []domain.CanonicalTicket, categorizer *DeviceCategorizer, topN int) []DeviceRollup {
	if topN <= 0 {
		topN = 3
	}
	type bucket struct {
		count           int
		reworked        int
		completionTotal int
		completionCount int
		techCounts      map[string]int
	}
	buckets := make(map[string]*bucket)

	for _, t := range tickets {
		category := categorizer.Categorize(t.DeviceInfo)
		b, ok := buckets[category]
		if !ok {
			b = &bucket{techCounts: make(map[string]int)}
			buckets[category] = b
		}
		b.count++
		if t.IsRework {
			b.reworked++
		}
		if t.CanonicalStatus.IsTerminal() {
			b.completionTotal += t.TotalBusinessMinutesOpen
			b.completionCount++
		}
		if t.AssignedTechnician != nil && *t.AssignedTechnician != "" {
			b.techCounts[*t.AssignedTechnician]++
		}
	}

	rollups := make([]DeviceRollup, 0, len(buckets))
	for category, b := range buckets {
		r := DeviceRollup{
			Category:    category,
			TicketCount: b.count,
			ReworkRate:  float64(b.reworked) / float64(b.count),
		}
		if b.completionCount > 0 {
			r.AvgCompletionMinutes = float64(b.completionTotal) / float64(b.completionCount)
		}
		r.TopTechnicians = topTechnicians(b.techCounts, topN)
		rollups = append(rollups, r)
	}
	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].TicketCount != rollups[j].TicketCount {
			return rollups[i].TicketCount > rollups[j].TicketCount
		}
		return rollups[i].Category < rollups[j].Category
	})
	return rollups
}

// BucketByTime produces day and hour-of-day rollups in the given location.
// Completion is attributed to the day of the terminal status transition
// when events carry one, else the ticket's last source update.
func BucketByTime(tickets []domain.CanonicalTicket, events []domain.StatusChangeEvent, loc *time.Location) TimeBuckets {
	days := make(map[string]*DayBucket)
	hours := make([]int, 24)

	dayOf := func(t time.Time) *DayBucket {
		key := t.In(loc).Format("2006-01-02")
		b, ok := days[key]
		if !ok {
			b = &DayBucket{Date: key}
			days[key] = b
		}
		return b
	}

	completedKeys := make(map[domain.TicketKey]bool)
	for _, e := range events {
		if e.ToStatus.IsTerminal() {
			dayOf(e.ChangedAt).Completed++
			completedKeys[domain.TicketKey{SourceInstance: e.SourceInstance, SourceID: e.SourceID}] = true
		}
	}

	for _, t := range tickets {
		dayOf(t.CreatedAt).Created++
		hours[t.CreatedAt.In(loc).Hour()]++
		if t.CanonicalStatus.IsTerminal() && !completedKeys[t.Key()] {
			dayOf(t.LastSourceUpdateAt).Completed++
		}
	}

	result := TimeBuckets{}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Days = append(result.Days, *days[k])
	}
	for hour, created := range hours {
		if created > 0 {
			result.Hours = append(result.Hours, HourBucket{Hour: hour, Created: created})
		}
	}
	return result
}

func topTechnicians(counts map[string]int, n int) []TechnicianVolume {
	volumes := make([]TechnicianVolume, 0, len(counts))
	for tech, count := range counts {
		volumes = append(volumes, TechnicianVolume{Technician: tech, TicketCount: count})
	}
	sort.Slice(volumes, func(i, j int) bool {
		if volumes[i].TicketCount != volumes[j].TicketCount {
			return volumes[i].TicketCount > volumes[j].TicketCount
		}
		return volumes[i].Technician < volumes[j].Technician
	})
	if len(volumes) > n {
		volumes = volumes[:n]
	}
	return volumes
}

func median(sorted []int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}
