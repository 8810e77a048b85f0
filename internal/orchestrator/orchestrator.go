// Package orchestrator drives sync passes: the atomic running-operation
// claim, due-ticket selection, bounded fan-out through the fetch and
// reconcile pipeline, outcome accounting, and per-ticket rescheduling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/connector"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/events"
	"github.com/bradeyre/platinum-repairs-sub001/internal/policy"
	"github.com/bradeyre/platinum-repairs-sub001/internal/reconciler"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
)

// Config tunes a sync pass.
type Config struct {
	// Concurrency bounds parallel reconciliations (and fetch slices).
	Concurrency int
	// PassBudget is the wall-clock limit for one pass.
	PassBudget time.Duration
	// ClaimStaleness is how long a running operation blocks new passes
	// before it is considered abandoned.
	ClaimStaleness time.Duration
	// DueLimit caps the due set selected per pass.
	DueLimit int
	// TargetStatuses drives per-status filtered fetching on incremental
	// passes. Empty means fetch everything.
	TargetStatuses []domain.CanonicalStatus
}

// RunRequest is the trigger surface input.
type RunRequest struct {
	Kind domain.SyncKind
	// From/To restrict the pass to tickets created in the range.
	From *time.Time
	To   *time.Time
	// MaxPriority, when set, restricts the due set to tickets at or below
	// the given sync priority.
	MaxPriority *int
}

// RunResult reports whether a pass was accepted and under which operation.
type RunResult struct {
	Accepted    bool   `json:"accepted"`
	OperationID string `json:"sync_operation_id,omitempty"`
	RunningID   string `json:"running_operation_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type ticketFetcher interface {
	FetchAll(ctx context.Context, targets []domain.CanonicalStatus) connector.FetchResult
}

type ticketReconciler interface {
	Reconcile(ctx context.Context, raw connector.RawTicket, force bool, now time.Time) (reconciler.Outcome, error)
}

// Orchestrator executes sync passes one at a time system-wide.
type Orchestrator struct {
	ops        repository.SyncOperationRepository
	tickets    repository.TicketRepository
	fetcher    ticketFetcher
	rec        ticketReconciler
	filter     *policy.Filter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        Config

	// now is swappable for tests.
	now func() time.Time
}

// New builds an orchestrator.
func New(ops repository.SyncOperationRepository, tickets repository.TicketRepository, fetcher ticketFetcher, rec ticketReconciler, filter *policy.Filter, dispatcher events.Dispatcher, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.PassBudget <= 0 {
		cfg.PassBudget = 10 * time.Minute
	}
	if cfg.ClaimStaleness <= 0 {
		cfg.ClaimStaleness = 30 * time.Minute
	}
	if cfg.DueLimit <= 0 {
		cfg.DueLimit = 500
	}
	return &Orchestrator{
		ops:        ops,
		tickets:    tickets,
		fetcher:    fetcher,
		rec:        rec,
		filter:     filter,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Trigger claims a pass and, when accepted, runs it in the background.
// Rejection is synchronous and reports the running operation's id; the
// request is not queued.
func (o *Orchestrator) Trigger(ctx context.Context, req RunRequest) (RunResult, error) {
	op, result, err := o.claim(ctx, req)
	if err != nil || !result.Accepted {
		return result, err
	}
	go o.runPass(op, req)
	return result, nil
}

// RunOnce claims a pass and executes it synchronously. Used by the cron
// schedule and by operators who want the outcome inline.
func (o *Orchestrator) RunOnce(ctx context.Context, req RunRequest) (RunResult, error) {
	op, result, err := o.claim(ctx, req)
	if err != nil || !result.Accepted {
		return result, err
	}
	o.runPass(op, req)
	return result, nil
}

func (o *Orchestrator) claim(ctx context.Context, req RunRequest) (*domain.SyncOperation, RunResult, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.SyncKindIncremental
	}
	op := &domain.SyncOperation{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: o.now(),
	}
	claim, err := o.ops.Claim(ctx, op, o.cfg.ClaimStaleness)
	if err != nil {
		return nil, RunResult{}, fmt.Errorf("claim sync operation: %w", err)
	}
	if !claim.Claimed {
		return nil, RunResult{
			Accepted:  false,
			RunningID: claim.RunningID,
			Reason:    "a sync operation is already running",
		}, nil
	}
	return op, RunResult{Accepted: true, OperationID: op.ID}, nil
}

// runPass executes the claimed pass under its wall-clock budget. Partial
// results are never rolled back: tickets written before a failure stay
// written, and the operation records what happened.
func (o *Orchestrator) runPass(op *domain.SyncOperation, req RunRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PassBudget)
	defer cancel()

	start := o.now()
	o.logger.Info("sync pass started",
		zap.String("operation_id", op.ID),
		zap.String("kind", string(op.Kind)))

	force := op.Kind == domain.SyncKindFull
	var targets []domain.CanonicalStatus
	if !force {
		targets = o.cfg.TargetStatuses
	}

	dueKeys, err := o.selectDue(ctx, req, start)
	if err != nil {
		op.ErrorLog = append(op.ErrorLog, fmt.Sprintf("selecting due tickets: %v", err))
	}

	fetched := o.fetcher.FetchAll(ctx, targets)
	op.ErrorLog = append(op.ErrorLog, fetched.Errors...)
	op.Counters.Errors += len(fetched.Errors)

	o.reconcileAll(ctx, op, fetched.Tickets, dueKeys, force, req, start)

	completed := o.now()
	op.CompletedAt = &completed
	op.Status = domain.SyncStatusCompleted
	if len(op.ErrorLog) > 0 {
		op.Status = domain.SyncStatusFailed
	}
	if ctx.Err() != nil {
		op.Status = domain.SyncStatusFailed
		op.ErrorLog = append(op.ErrorLog, fmt.Sprintf("pass exceeded budget %s: %v", o.cfg.PassBudget, ctx.Err()))
	}

	// Finalization must not be cut off by the expired pass budget.
	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finalizeCancel()
	if err := o.ops.Finalize(finalizeCtx, op); err != nil {
		o.logger.Error("failed to finalize sync operation", zap.String("operation_id", op.ID), zap.Error(err))
	}

	if o.dispatcher != nil {
		_ = o.dispatcher.Publish(finalizeCtx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventSyncCompleted,
			Timestamp: completed,
			Payload: events.SyncCompletedPayload{
				OperationID: op.ID,
				Kind:        op.Kind,
				Status:      op.Status,
				Counters:    op.Counters,
			},
		})
	}

	o.logger.Info("sync pass finished",
		zap.String("operation_id", op.ID),
		zap.String("status", string(op.Status)),
		zap.Int("processed", op.Counters.Processed),
		zap.Int("inserted", op.Counters.Inserted),
		zap.Int("updated", op.Counters.Updated),
		zap.Int("skipped", op.Counters.Skipped),
		zap.Int("errors", op.Counters.Errors),
		zap.Duration("elapsed", completed.Sub(start)))
}

// selectDue returns the keys of stored tickets due for sync, honoring the
// request's priority cap. Tickets outside the due set are left untouched
// by an incremental pass.
func (o *Orchestrator) selectDue(ctx context.Context, req RunRequest, now time.Time) (map[domain.TicketKey]struct{}, error) {
	due, err := o.tickets.ListDue(ctx, now, o.cfg.DueLimit)
	if err != nil {
		return nil, err
	}
	keys := make(map[domain.TicketKey]struct{}, len(due))
	for _, t := range due {
		if req.MaxPriority != nil && t.SyncPriority > *req.MaxPriority {
			continue
		}
		keys[t.Key()] = struct{}{}
	}
	return keys, nil
}

func (o *Orchestrator) reconcileAll(ctx context.Context, op *domain.SyncOperation, raws []connector.RawTicket, dueKeys map[domain.TicketKey]struct{}, force bool, req RunRequest, now time.Time) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, o.cfg.Concurrency)

	for _, raw := range raws {
		if ctx.Err() != nil {
			// Budget exhausted: stop launching, let in-flight work finish.
			break
		}
		raw := raw

		if req.From != nil && raw.CreatedAt.Before(*req.From) {
			continue
		}
		if req.To != nil && raw.CreatedAt.After(*req.To) {
			continue
		}

		decision := o.filter.Evaluate(raw.SourceInstance, raw.Assignee, raw.Workshop)
		if !decision.InScope {
			o.logger.Debug("ticket filtered out",
				zap.String("source", raw.SourceInstance),
				zap.String("id", raw.SourceID),
				zap.String("rule", decision.MatchedRule))
			mu.Lock()
			op.Counters.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, err := o.reconcileOne(ctx, raw, dueKeys, force, now)

			mu.Lock()
			defer mu.Unlock()
			op.Counters.Processed++
			switch {
			case err != nil:
				op.Counters.Errors++
				op.ErrorLog = append(op.ErrorLog, err.Error())
			case outcome == reconciler.OutcomeInserted:
				op.Counters.Inserted++
			case outcome == reconciler.OutcomeUpdated:
				op.Counters.Updated++
			default:
				op.Counters.Skipped++
			}
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) reconcileOne(ctx context.Context, raw connector.RawTicket, dueKeys map[domain.TicketKey]struct{}, force bool, now time.Time) (reconciler.Outcome, error) {
	key := domain.TicketKey{SourceInstance: raw.SourceInstance, SourceID: raw.SourceID}

	if !force {
		if _, due := dueKeys[key]; !due {
			// Known but not due → leave alone; unseen → always process.
			if _, err := o.tickets.GetByKey(ctx, key); err == nil {
				return reconciler.OutcomeSkipped, nil
			} else if !errors.Is(err, pgx.ErrNoRows) {
				return reconciler.OutcomeSkipped, fmt.Errorf("check %s/%s: %w", key.SourceInstance, key.SourceID, err)
			}
		}
	}

	outcome, err := o.rec.Reconcile(ctx, raw, force, now)
	if err != nil {
		return outcome, err
	}

	if err := o.reschedule(ctx, key, raw, now); err != nil {
		o.logger.Warn("reschedule failed",
			zap.String("source", key.SourceInstance), zap.String("id", key.SourceID), zap.Error(err))
	}
	return outcome, nil
}

// reschedule recomputes a ticket's next sync time from its canonical
// status and age, concentrating effort on tickets likely to still change.
func (o *Orchestrator) reschedule(ctx context.Context, key domain.TicketKey, raw connector.RawTicket, now time.Time) error {
	stored, err := o.tickets.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	age := now.Sub(stored.CreatedAt)
	priority := reconciler.DefaultPriority(stored.CanonicalStatus)
	next := now.Add(NextSyncDelay(stored.CanonicalStatus, age))
	return o.tickets.UpdateSyncSchedule(ctx, key, now, next, priority)
}

// NextSyncDelay returns how long a ticket in the given status, at the
// given age, can wait before its next sync.
func NextSyncDelay(status domain.CanonicalStatus, age time.Duration) time.Duration {
	const (
		activeDelay   = 15 * time.Minute
		waitingDelay  = time.Hour
		terminalDelay = 24 * time.Hour
		// Effectively never: terminal tickets past the audit horizon.
		farDeferral = 365 * 24 * time.Hour
		auditAge    = 30 * 24 * time.Hour
	)
	switch {
	case status.IsTerminal() && age > auditAge:
		return farDeferral
	case status.IsTerminal():
		return terminalDelay
	case status.IsActiveWork():
		return activeDelay
	default:
		return waitingDelay
	}
}
