package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// rawTicketPayload mirrors the source API's wire shape. Timestamps arrive
// as RFC3339 strings and are validated before anything downstream sees
// them.
type rawTicketPayload struct {
	ID        string              `json:"id"`
	Number    string              `json:"number"`
	Subject   string              `json:"subject"`
	Problem   string              `json:"problem_description"`
	Device    string              `json:"device_info"`
	Status    string              `json:"status"`
	Assignee  string              `json:"assignee"`
	Workshop  string              `json:"workshop"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
	Comments  []rawCommentPayload `json:"comments"`
}

type rawCommentPayload struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	Internal  bool   `json:"internal"`
}

type ticketListResponse struct {
	Tickets    []rawTicketPayload `json:"tickets"`
	Page       int                `json:"page"`
	TotalPages int                `json:"total_pages"`
}

// RawTicket is the validated intermediate form handed to the reconciler.
// Fields that failed validation never reach it; a payload that cannot be
// validated becomes a per-ticket error instead.
type RawTicket struct {
	SourceInstance string
	SourceID       string
	Number         string
	Subject        string
	Description    string
	DeviceInfo     string
	RawStatus      string
	Assignee       string
	Workshop       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Comments       []domain.Comment
}

// validate converts a wire payload into a RawTicket, rejecting records
// missing identity or parseable timestamps.
func (p rawTicketPayload) validate(sourceInstance string) (RawTicket, error) {
	if strings.TrimSpace(p.ID) == "" {
		return RawTicket{}, fmt.Errorf("ticket missing id (number=%q)", p.Number)
	}
	if strings.TrimSpace(p.Status) == "" {
		return RawTicket{}, fmt.Errorf("ticket %s missing status", p.ID)
	}
	createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return RawTicket{}, fmt.Errorf("ticket %s has bad created_at %q: %w", p.ID, p.CreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339, p.UpdatedAt)
	if err != nil {
		return RawTicket{}, fmt.Errorf("ticket %s has bad updated_at %q: %w", p.ID, p.UpdatedAt, err)
	}

	comments := make([]domain.Comment, 0, len(p.Comments))
	for _, c := range p.Comments {
		ts, err := time.Parse(time.RFC3339, c.CreatedAt)
		if err != nil {
			// A comment with an unparseable timestamp keeps its text but
			// sorts with the ticket's own creation time.
			ts = createdAt
		}
		comments = append(comments, domain.Comment{
			Author:     c.Author,
			Text:       c.Body,
			Timestamp:  ts,
			IsInternal: c.Internal,
		})
	}

	return RawTicket{
		SourceInstance: sourceInstance,
		SourceID:       strings.TrimSpace(p.ID),
		Number:         p.Number,
		Subject:        p.Subject,
		Description:    p.Problem,
		DeviceInfo:     p.Device,
		RawStatus:      p.Status,
		Assignee:       p.Assignee,
		Workshop:       p.Workshop,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Comments:       comments,
	}, nil
}
