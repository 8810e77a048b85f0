package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bradeyre/platinum-repairs-sub001/internal/api/dto"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
	"github.com/bradeyre/platinum-repairs-sub001/pkg/util"
)

// TicketsHandler exposes the read-only canonical ticket surface. All
// writes go through the sync pipeline; there is no create or edit here.
type TicketsHandler struct {
	tickets repository.TicketRepository
	events  repository.StatusEventRepository
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets repository.TicketRepository, events repository.StatusEventRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, events: events}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.ListWithFilter(c.UserContext(), filter)
	if err != nil {
		return util.MapError(err)
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:source/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	key := domain.TicketKey{
		SourceInstance: c.Params("source"),
		SourceID:       c.Params("id"),
	}
	ticket, err := h.tickets.GetByKey(c.UserContext(), key)
	if err != nil {
		return util.MapError(err)
	}
	history, err := h.events.ListByTicket(c.UserContext(), key)
	if err != nil {
		return util.MapError(err)
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, history)})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if source := c.Query("source"); source != "" {
		filter.SourceInstance = &source
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.CanonicalStatus(strings.TrimSpace(part)))
		}
	}
	if tech := c.Query("technician"); tech != "" {
		filter.Technician = &tech
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(t *domain.CanonicalTicket) dto.TicketSummary {
	return dto.TicketSummary{
		SourceInstance:     t.SourceInstance,
		SourceID:           t.SourceID,
		Number:             t.Number,
		Subject:            t.Subject,
		CanonicalStatus:    t.CanonicalStatus,
		AssignedTechnician: t.AssignedTechnician,
		CreatedAt:          t.CreatedAt,
		LastSourceUpdateAt: t.LastSourceUpdateAt,
		IsRework:           t.IsRework,
		SyncPriority:       t.SyncPriority,
	}
}

func ticketDetail(t *domain.CanonicalTicket, history []domain.StatusChangeEvent) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(t.Comments))
	for _, cm := range t.Comments {
		comments = append(comments, dto.CommentResponse{
			Author:     cm.Author,
			Text:       cm.Text,
			Timestamp:  cm.Timestamp,
			IsInternal: cm.IsInternal,
		})
	}
	changes := make([]dto.StatusChangeResponse, 0, len(history))
	for _, ev := range history {
		changes = append(changes, dto.StatusChangeResponse{
			FromStatus: ev.FromStatus,
			ToStatus:   ev.ToStatus,
			ChangedAt:  ev.ChangedAt,
			ChangedBy:  ev.ChangedBy,
		})
	}
	return dto.TicketDetailResponse{
		SourceInstance:           t.SourceInstance,
		SourceID:                 t.SourceID,
		Number:                   t.Number,
		Subject:                  t.Subject,
		Description:              t.Description,
		DeviceInfo:               t.DeviceInfo,
		RawStatus:                t.RawStatus,
		CanonicalStatus:          t.CanonicalStatus,
		AssignedTechnician:       t.AssignedTechnician,
		CreatedAt:                t.CreatedAt,
		LastSourceUpdateAt:       t.LastSourceUpdateAt,
		TotalBusinessMinutesOpen: t.TotalBusinessMinutesOpen,
		ActiveWorkMinutes:        t.ActiveWorkMinutes,
		WaitingMinutes:           t.WaitingMinutes,
		TimingEstimated:          t.TimingEstimated,
		IsRework:                 t.IsRework,
		ReworkReason:             t.ReworkReason,
		ReworkCount:              t.ReworkCount,
		QualityScore:             t.QualityScore,
		Comments:                 comments,
		History:                  changes,
		LastSyncedAt:             t.LastSyncedAt,
		NextSyncAt:               t.NextSyncAt,
		SyncPriority:             t.SyncPriority,
	}
}
