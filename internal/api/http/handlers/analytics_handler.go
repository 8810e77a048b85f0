package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/analytics"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
	"github.com/bradeyre/platinum-repairs-sub001/pkg/util"
)

const defaultAnalyticsWindow = 30 * 24 * time.Hour

// AnalyticsHandler serves rollups over the reconciled ticket store.
// Responses are cached in Redis with a short TTL; the store is the source
// of truth and a cold cache only costs a recompute.
type AnalyticsHandler struct {
	tickets     repository.TicketRepository
	events      repository.StatusEventRepository
	samples     repository.WaitSampleRepository
	categorizer *analytics.DeviceCategorizer
	location    *time.Location
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewAnalyticsHandler constructs handler. cache may be nil.
func NewAnalyticsHandler(
	tickets repository.TicketRepository,
	events repository.StatusEventRepository,
	samples repository.WaitSampleRepository,
	categorizer *analytics.DeviceCategorizer,
	location *time.Location,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *AnalyticsHandler {
	if location == nil {
		location = time.UTC
	}
	return &AnalyticsHandler{
		tickets:     tickets,
		events:      events,
		samples:     samples,
		categorizer: categorizer,
		location:    location,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Summary GET /analytics/summary.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	return h.serveCached(c, "summary", func(from, to time.Time) (any, error) {
		tickets, err := h.loadTickets(c, from, to)
		if err != nil {
			return nil, err
		}
		samples, err := h.samples.ListBetween(c.UserContext(), from, to)
		if err != nil {
			return nil, err
		}
		return analytics.Summarize(tickets, samples), nil
	})
}

// Technicians GET /analytics/technicians.
func (h *AnalyticsHandler) Technicians(c *fiber.Ctx) error {
	return h.serveCached(c, "technicians", func(from, to time.Time) (any, error) {
		tickets, err := h.loadTickets(c, from, to)
		if err != nil {
			return nil, err
		}
		samples, err := h.samples.ListBetween(c.UserContext(), from, to)
		if err != nil {
			return nil, err
		}
		return analytics.TechnicianRollups(tickets, samples), nil
	})
}

// Devices GET /analytics/devices.
func (h *AnalyticsHandler) Devices(c *fiber.Ctx) error {
	return h.serveCached(c, "devices", func(from, to time.Time) (any, error) {
		tickets, err := h.loadTickets(c, from, to)
		if err != nil {
			return nil, err
		}
		topN := parseInt(c.Query("top"), 3)
		return analytics.DeviceRollups(tickets, h.categorizer, topN), nil
	})
}

// TimeBuckets GET /analytics/time-buckets.
func (h *AnalyticsHandler) TimeBuckets(c *fiber.Ctx) error {
	return h.serveCached(c, "time-buckets", func(from, to time.Time) (any, error) {
		tickets, err := h.loadTickets(c, from, to)
		if err != nil {
			return nil, err
		}
		events, err := h.events.ListBetween(c.UserContext(), from, to)
		if err != nil {
			return nil, err
		}
		return analytics.BucketByTime(tickets, events, h.location), nil
	})
}

func (h *AnalyticsHandler) loadTickets(c *fiber.Ctx, from, to time.Time) ([]domain.CanonicalTicket, error) {
	return h.tickets.ListWithFilter(c.UserContext(), repository.TicketFilter{
		CreatedFrom: &from,
		CreatedTo:   &to,
		Limit:       10000,
	})
}

// serveCached resolves the query window, consults the cache, and falls
// back to computing the rollup.
func (h *AnalyticsHandler) serveCached(c *fiber.Ctx, kind string, compute func(from, to time.Time) (any, error)) error {
	from, to, err := h.window(c)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("analytics:%s:%d:%d:%s", kind, from.Unix(), to.Unix(), c.Query("top"))
	if h.cache != nil {
		if raw, err := h.cache.Get(c.UserContext(), key).Bytes(); err == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(raw)
		}
	}

	data, err := compute(from, to)
	if err != nil {
		return util.MapError(err)
	}
	body := fiber.Map{"data": data, "window": fiber.Map{"from": from, "to": to}}

	if h.cache != nil {
		if raw, err := json.Marshal(body); err == nil {
			if err := h.cache.Set(c.UserContext(), key, raw, h.cacheTTL).Err(); err != nil {
				h.logger.Warn("analytics cache write failed", zap.Error(err))
			}
		}
	}
	return c.JSON(body)
}

func (h *AnalyticsHandler) window(c *fiber.Ctx) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.Add(-defaultAnalyticsWindow)
	if v := parseTime(c.Query("from")); v != nil {
		from = *v
	}
	if v := parseTime(c.Query("to")); v != nil {
		to = *v
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, util.NewValidationError("to must not precede from", nil)
	}
	return from, to, nil
}
