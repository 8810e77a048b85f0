package events

import (
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketInserted      EventType = "ticket_inserted"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventSyncCompleted       EventType = "sync_completed"
)

// Event represents a domain event emitted during reconciliation and sync.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	TicketKey *domain.TicketKey `json:"ticket_key,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   interface{}       `json:"payload"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.CanonicalStatus `json:"old_status"`
	NewStatus domain.CanonicalStatus `json:"new_status"`
	ChangedBy string                 `json:"changed_by"`
}

// TicketUpsertPayload payload for insert/update events.
type TicketUpsertPayload struct {
	Number          string                 `json:"number"`
	CanonicalStatus domain.CanonicalStatus `json:"canonical_status"`
	IsRework        bool                   `json:"is_rework"`
}

// SyncCompletedPayload payload.
type SyncCompletedPayload struct {
	OperationID string              `json:"operation_id"`
	Kind        domain.SyncKind     `json:"kind"`
	Status      domain.SyncStatus   `json:"status"`
	Counters    domain.SyncCounters `json:"counters"`
}
