package domain

import "time"

// StatusChangeEvent is an append-only record of a canonical-status
// transition. It feeds both audit and wait-time computation and is never
// mutated after insertion.
type StatusChangeEvent struct {
	ID             string
	SourceInstance string
	SourceID       string
	FromStatus     CanonicalStatus
	ToStatus       CanonicalStatus
	ChangedAt      time.Time
	ChangedBy      string
}

// WaitTimeSample captures, for a ticket that entered an active-work status,
// the business minutes it waited beforehand, keyed by the technician who
// picked it up. Samples are recomputed rather than corrected in place.
type WaitTimeSample struct {
	ID              string
	SourceInstance  string
	SourceID        string
	Technician      string
	WaitedMinutes   int
	EnteredActiveAt time.Time
}
