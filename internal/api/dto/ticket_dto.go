package dto

import (
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// TicketSummary is the list-view shape of a canonical ticket.
type TicketSummary struct {
	SourceInstance     string                 `json:"source_instance"`
	SourceID           string                 `json:"source_id"`
	Number             string                 `json:"number"`
	Subject            string                 `json:"subject"`
	CanonicalStatus    domain.CanonicalStatus `json:"canonical_status"`
	AssignedTechnician *string                `json:"assigned_technician"`
	CreatedAt          time.Time              `json:"created_at"`
	LastSourceUpdateAt time.Time              `json:"last_source_update_at"`
	IsRework           bool                   `json:"is_rework"`
	SyncPriority       int                    `json:"sync_priority"`
}

// TicketDetailResponse provides full ticket info including timing and
// status history.
type TicketDetailResponse struct {
	SourceInstance     string                 `json:"source_instance"`
	SourceID           string                 `json:"source_id"`
	Number             string                 `json:"number"`
	Subject            string                 `json:"subject"`
	Description        string                 `json:"description"`
	DeviceInfo         string                 `json:"device_info"`
	RawStatus          string                 `json:"raw_status"`
	CanonicalStatus    domain.CanonicalStatus `json:"canonical_status"`
	AssignedTechnician *string                `json:"assigned_technician"`

	CreatedAt                time.Time `json:"created_at"`
	LastSourceUpdateAt       time.Time `json:"last_source_update_at"`
	TotalBusinessMinutesOpen int       `json:"total_business_minutes_open"`
	ActiveWorkMinutes        int       `json:"active_work_minutes"`
	WaitingMinutes           int       `json:"waiting_minutes"`
	TimingEstimated          bool      `json:"timing_estimated"`

	IsRework     bool    `json:"is_rework"`
	ReworkReason *string `json:"rework_reason"`
	ReworkCount  int     `json:"rework_count"`
	QualityScore float64 `json:"quality_score"`

	Comments []CommentResponse      `json:"comments"`
	History  []StatusChangeResponse `json:"history"`

	LastSyncedAt time.Time `json:"last_synced_at"`
	NextSyncAt   time.Time `json:"next_sync_at"`
	SyncPriority int       `json:"sync_priority"`
}

// CommentResponse is one comment in the ticket's stream.
type CommentResponse struct {
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsInternal bool      `json:"is_internal"`
}

// StatusChangeResponse is one audited status transition.
type StatusChangeResponse struct {
	FromStatus domain.CanonicalStatus `json:"from_status"`
	ToStatus   domain.CanonicalStatus `json:"to_status"`
	ChangedAt  time.Time              `json:"changed_at"`
	ChangedBy  string                 `json:"changed_by"`
}
