package dto

import (
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// RunSyncRequest is the trigger payload. All fields are optional; an
// empty body requests a plain incremental pass.
type RunSyncRequest struct {
	Kind        string     `json:"kind"`
	From        *time.Time `json:"from"`
	To          *time.Time `json:"to"`
	MaxPriority *int       `json:"max_priority"`
}

// SyncOperationResponse is the audit view of one sync pass.
type SyncOperationResponse struct {
	ID          string              `json:"id"`
	Kind        domain.SyncKind     `json:"kind"`
	Status      domain.SyncStatus   `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at"`
	Counters    domain.SyncCounters `json:"counters"`
	ErrorLog    []string            `json:"error_log"`
}
