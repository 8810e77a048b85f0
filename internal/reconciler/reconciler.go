// Package reconciler turns raw fetched tickets into canonical ticket
// mutations: status normalization, business-hours timing, rework tagging,
// and the keyed upsert with inserted/updated/skipped semantics.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/calendar"
	"github.com/bradeyre/platinum-repairs-sub001/internal/connector"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/events"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
	"github.com/bradeyre/platinum-repairs-sub001/internal/rework"
	"github.com/bradeyre/platinum-repairs-sub001/internal/status"
)

// Outcome classifies the result of reconciling one raw ticket.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
)

// Dependencies bundles the reconciler's collaborators.
type Dependencies struct {
	TicketRepo repository.TicketRepository
	EventRepo  repository.StatusEventRepository
	SampleRepo repository.WaitSampleRepository
	Normalizer *status.Normalizer
	Calendar   *calendar.BusinessCalendar
	Detector   *rework.Detector
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// Reconciler owns CanonicalTicket mutation. Each ticket's reconciliation
// is independent; no cross-ticket state is shared, so calls are safe to
// run in parallel.
type Reconciler struct {
	tickets    repository.TicketRepository
	history    repository.StatusEventRepository
	samples    repository.WaitSampleRepository
	normalizer *status.Normalizer
	cal        *calendar.BusinessCalendar
	detector   *rework.Detector
	dispatcher events.Dispatcher
	logger     *zap.Logger

	// defaultActiveRatio is the documented fallback split of open time
	// into active work when no status history exists. A tunable default,
	// not a validated constant; results carry TimingEstimated=true.
	defaultActiveRatio float64
}

// New constructs a reconciler. activeRatio outside (0,1) falls back to the
// default 0.3 split.
func New(deps Dependencies, activeRatio float64) *Reconciler {
	if activeRatio <= 0 || activeRatio >= 1 {
		activeRatio = 0.3
	}
	return &Reconciler{
		tickets:            deps.TicketRepo,
		history:            deps.EventRepo,
		samples:            deps.SampleRepo,
		normalizer:         deps.Normalizer,
		cal:                deps.Calendar,
		detector:           deps.Detector,
		dispatcher:         deps.Dispatcher,
		logger:             deps.Logger,
		defaultActiveRatio: activeRatio,
	}
}

// Reconcile processes one raw ticket. force overrides the change check so
// full resyncs rewrite even unchanged tickets.
func (r *Reconciler) Reconcile(ctx context.Context, raw connector.RawTicket, force bool, now time.Time) (Outcome, error) {
	key := domain.TicketKey{SourceInstance: raw.SourceInstance, SourceID: raw.SourceID}

	existing, err := r.tickets.GetByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return OutcomeSkipped, fmt.Errorf("load %s/%s: %w", key.SourceInstance, key.SourceID, err)
		}
		existing = nil
	}

	if existing != nil && !force && !raw.UpdatedAt.After(existing.LastSourceUpdateAt) {
		return OutcomeSkipped, nil
	}

	canonical := r.normalizer.Normalize(raw.RawStatus)

	if existing != nil && existing.CanonicalStatus != canonical {
		if err := r.recordTransition(ctx, existing, canonical, raw, now); err != nil {
			return OutcomeSkipped, err
		}
	}

	ticket := r.buildTicket(ctx, raw, canonical, existing, now)

	if existing == nil {
		if err := r.tickets.Insert(ctx, ticket); err != nil {
			return OutcomeSkipped, fmt.Errorf("insert %s/%s: %w", key.SourceInstance, key.SourceID, err)
		}
		r.publish(ctx, events.EventTicketInserted, ticket)
		return OutcomeInserted, nil
	}

	if err := r.tickets.Update(ctx, ticket, force); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a last-write-wins race against a fresher copy.
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, fmt.Errorf("update %s/%s: %w", key.SourceInstance, key.SourceID, err)
	}
	r.publish(ctx, events.EventTicketUpdated, ticket)
	return OutcomeUpdated, nil
}

func (r *Reconciler) buildTicket(ctx context.Context, raw connector.RawTicket, canonical domain.CanonicalStatus, existing *domain.CanonicalTicket, now time.Time) *domain.CanonicalTicket {
	end := now
	if canonical.IsTerminal() {
		// Completion timestamp: the last source update is the best signal
		// available for when the ticket actually closed.
		end = raw.UpdatedAt
	}
	total := r.cal.BusinessMinutesBetween(raw.CreatedAt, end)

	active, estimated := r.splitActiveMinutes(ctx, raw, total, end)
	waiting := total - active
	if waiting < 0 {
		waiting = 0
		active = total
	}

	classification := r.detector.Classify(raw.Description, raw.Comments)

	ticket := &domain.CanonicalTicket{
		SourceInstance:           raw.SourceInstance,
		SourceID:                 raw.SourceID,
		Number:                   raw.Number,
		Subject:                  raw.Subject,
		Description:              raw.Description,
		DeviceInfo:               raw.DeviceInfo,
		Comments:                 raw.Comments,
		RawStatus:                raw.RawStatus,
		CanonicalStatus:          canonical,
		CreatedAt:                raw.CreatedAt,
		LastSourceUpdateAt:       raw.UpdatedAt,
		TotalBusinessMinutesOpen: total,
		ActiveWorkMinutes:        active,
		WaitingMinutes:           waiting,
		TimingEstimated:          estimated,
		IsRework:                 classification.IsRework,
		ReworkCount:              classification.Count,
		QualityScore:             rework.QualityScore(classification),
		LastSyncedAt:             now,
	}
	if classification.Reason != "" {
		reason := classification.Reason
		ticket.ReworkReason = &reason
	}
	if tech := raw.Assignee; tech != "" {
		ticket.AssignedTechnician = &tech
	}

	// Sync scheduling fields survive the rewrite; the orchestrator
	// recomputes them after the pass.
	if existing != nil {
		ticket.NextSyncAt = existing.NextSyncAt
		ticket.SyncPriority = existing.SyncPriority
	} else {
		ticket.NextSyncAt = now
		ticket.SyncPriority = DefaultPriority(canonical)
	}
	return ticket
}

// splitActiveMinutes divides total open minutes into active work using
// status history when available. Without history the configured default
// ratio applies and the result is flagged as estimated.
func (r *Reconciler) splitActiveMinutes(ctx context.Context, raw connector.RawTicket, total int, end time.Time) (int, bool) {
	history, err := r.history.ListByTicket(ctx, domain.TicketKey{SourceInstance: raw.SourceInstance, SourceID: raw.SourceID})
	if err != nil {
		r.logger.Warn("status history unavailable, falling back to estimated split",
			zap.String("source", raw.SourceInstance), zap.String("id", raw.SourceID), zap.Error(err))
		history = nil
	}
	if len(history) == 0 {
		return int(float64(total)*r.defaultActiveRatio + 0.5), true
	}

	active := 0
	segStart := raw.CreatedAt
	segStatus := history[0].FromStatus
	for _, event := range history {
		if segStatus.IsActiveWork() {
			active += r.cal.BusinessMinutesBetween(segStart, event.ChangedAt)
		}
		segStart = event.ChangedAt
		segStatus = event.ToStatus
	}
	if segStatus.IsActiveWork() {
		active += r.cal.BusinessMinutesBetween(segStart, end)
	}
	if active > total {
		active = total
	}
	return active, false
}

func (r *Reconciler) recordTransition(ctx context.Context, existing *domain.CanonicalTicket, next domain.CanonicalStatus, raw connector.RawTicket, now time.Time) error {
	changedBy := raw.Assignee
	if changedBy == "" {
		changedBy = "sync"
	}
	event := &domain.StatusChangeEvent{
		ID:             uuid.NewString(),
		SourceInstance: raw.SourceInstance,
		SourceID:       raw.SourceID,
		FromStatus:     existing.CanonicalStatus,
		ToStatus:       next,
		ChangedAt:      raw.UpdatedAt,
		ChangedBy:      changedBy,
	}
	if err := r.history.Append(ctx, event); err != nil {
		return fmt.Errorf("append status event for %s/%s: %w", raw.SourceInstance, raw.SourceID, err)
	}

	if next.IsActiveWork() && !existing.CanonicalStatus.IsActiveWork() {
		if err := r.recordWaitSample(ctx, raw, event.ChangedAt); err != nil {
			// A lost sample degrades analytics, not correctness.
			r.logger.Warn("wait sample not recorded",
				zap.String("source", raw.SourceInstance), zap.String("id", raw.SourceID), zap.Error(err))
		}
	}

	if r.dispatcher != nil {
		key := domain.TicketKey{SourceInstance: raw.SourceInstance, SourceID: raw.SourceID}
		_ = r.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketStatusChanged,
			TicketKey: &key,
			Timestamp: now,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: existing.CanonicalStatus,
				NewStatus: next,
				ChangedBy: changedBy,
			},
		})
	}
	return nil
}

func (r *Reconciler) recordWaitSample(ctx context.Context, raw connector.RawTicket, enteredActiveAt time.Time) error {
	waited := r.cal.BusinessMinutesBetween(raw.CreatedAt, enteredActiveAt)
	technician := raw.Assignee
	if technician == "" {
		technician = "unassigned"
	}
	return r.samples.Upsert(ctx, &domain.WaitTimeSample{
		ID:              uuid.NewString(),
		SourceInstance:  raw.SourceInstance,
		SourceID:        raw.SourceID,
		Technician:      technician,
		WaitedMinutes:   waited,
		EnteredActiveAt: enteredActiveAt,
	})
}

func (r *Reconciler) publish(ctx context.Context, eventType events.EventType, ticket *domain.CanonicalTicket) {
	if r.dispatcher == nil {
		return
	}
	key := ticket.Key()
	_ = r.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketKey: &key,
		Timestamp: ticket.LastSyncedAt,
		Payload: events.TicketUpsertPayload{
			Number:          ticket.Number,
			CanonicalStatus: ticket.CanonicalStatus,
			IsRework:        ticket.IsRework,
		},
	})
}

// DefaultPriority maps a canonical status to an initial sync priority;
// lower syncs sooner.
func DefaultPriority(s domain.CanonicalStatus) int {
	switch {
	case s.IsActiveWork():
		return 1
	case s.IsTerminal():
		return 5
	default:
		return 2
	}
}
