package domain

import "time"

// CanonicalStatus enumerates the fixed taxonomy all source statuses are
// normalized into. Unknown raw statuses pass through as-is, so values of
// this type outside the constants below are possible and intentional.
type CanonicalStatus string

const (
	StatusAwaitingRework          CanonicalStatus = "Awaiting Rework"
	StatusAwaitingWorkshopRepairs CanonicalStatus = "Awaiting Workshop Repairs"
	StatusAwaitingDamageReport    CanonicalStatus = "Awaiting Damage Report"
	StatusAwaitingRepair          CanonicalStatus = "Awaiting Repair"
	StatusAwaitingAuthorization   CanonicalStatus = "Awaiting Authorization"
	StatusInProgress              CanonicalStatus = "In Progress"
	StatusCompleted               CanonicalStatus = "Completed"
)

// IsTerminal reports whether the status ends the ticket lifecycle.
func (s CanonicalStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// IsActiveWork reports whether time spent in this status counts as active
// repair work rather than waiting.
func (s CanonicalStatus) IsActiveWork() bool {
	return s == StatusInProgress || s == StatusAwaitingRework
}

// KnownStatuses lists every member of the canonical taxonomy.
func KnownStatuses() []CanonicalStatus {
	return []CanonicalStatus{
		StatusAwaitingRework,
		StatusAwaitingWorkshopRepairs,
		StatusAwaitingDamageReport,
		StatusAwaitingRepair,
		StatusAwaitingAuthorization,
		StatusInProgress,
		StatusCompleted,
	}
}

// TicketKey identifies a canonical ticket globally.
type TicketKey struct {
	SourceInstance string
	SourceID       string
}

// Comment is one entry in a ticket's comment stream, ordered by Timestamp.
type Comment struct {
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsInternal bool      `json:"is_internal"`
}

// CanonicalTicket is the single reconciled representation of a repair
// ticket, independent of which source system it originated from.
type CanonicalTicket struct {
	SourceInstance string
	SourceID       string
	Number         string

	Subject     string
	Description string
	DeviceInfo  string
	Comments    []Comment

	RawStatus          string
	CanonicalStatus    CanonicalStatus
	AssignedTechnician *string

	CreatedAt                time.Time
	LastSourceUpdateAt       time.Time
	TotalBusinessMinutesOpen int
	ActiveWorkMinutes        int
	WaitingMinutes           int
	// TimingEstimated marks the active/waiting split as derived from the
	// configured default ratio rather than status history.
	TimingEstimated bool

	IsRework     bool
	ReworkReason *string
	ReworkCount  int
	QualityScore float64

	LastSyncedAt time.Time
	NextSyncAt   time.Time
	SyncPriority int
}

// Key returns the ticket's global identity.
func (t *CanonicalTicket) Key() TicketKey {
	return TicketKey{SourceInstance: t.SourceInstance, SourceID: t.SourceID}
}
