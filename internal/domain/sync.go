package domain

import "time"

// SyncKind distinguishes a full resync from an incremental pass.
type SyncKind string

const (
	SyncKindFull        SyncKind = "full"
	SyncKindIncremental SyncKind = "incremental"
)

// SyncStatus enumerates sync pass lifecycle states.
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncCounters aggregates per-pass outcome counts.
type SyncCounters struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Add folds another counter set into this one.
func (c *SyncCounters) Add(other SyncCounters) {
	c.Processed += other.Processed
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Errors += other.Errors
}

// SyncOperation is one execution record of the orchestrator. At most one
// operation may be running at a time across all process instances; the
// repository enforces this with a conditional insert. Finalized operations
// are immutable and retained for audit.
type SyncOperation struct {
	ID          string
	Kind        SyncKind
	Status      SyncStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Counters    SyncCounters
	ErrorLog    []string
}
