package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/connector"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/policy"
	"github.com/bradeyre/platinum-repairs-sub001/internal/reconciler"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
)

type fakeOpsRepo struct {
	mu      sync.Mutex
	ops     map[string]*domain.SyncOperation
	running string
}

func newFakeOpsRepo() *fakeOpsRepo {
	return &fakeOpsRepo{ops: make(map[string]*domain.SyncOperation)}
}

func (f *fakeOpsRepo) Claim(_ context.Context, op *domain.SyncOperation, staleness time.Duration) (repository.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running != "" {
		current := f.ops[f.running]
		if op.StartedAt.Sub(current.StartedAt) < staleness {
			return repository.ClaimResult{Claimed: false, RunningID: f.running}, nil
		}
	}
	op.Status = domain.SyncStatusRunning
	stored := *op
	f.ops[op.ID] = &stored
	f.running = op.ID
	return repository.ClaimResult{Claimed: true}, nil
}

func (f *fakeOpsRepo) Finalize(_ context.Context, op *domain.SyncOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.ops[op.ID]
	if !ok || stored.Status != domain.SyncStatusRunning {
		return pgx.ErrNoRows
	}
	finalized := *op
	f.ops[op.ID] = &finalized
	if f.running == op.ID {
		f.running = ""
	}
	return nil
}

func (f *fakeOpsRepo) GetByID(_ context.Context, id string) (*domain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.ops[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *op
	return &copied, nil
}

func (f *fakeOpsRepo) ListRecent(_ context.Context, _ int) ([]domain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SyncOperation
	for _, op := range f.ops {
		out = append(out, *op)
	}
	return out, nil
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[domain.TicketKey]domain.CanonicalTicket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[domain.TicketKey]domain.CanonicalTicket)}
}

func (f *fakeTicketRepo) GetByKey(_ context.Context, key domain.TicketKey) (*domain.CanonicalTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := t
	return &copied, nil
}

func (f *fakeTicketRepo) Insert(_ context.Context, t *domain.CanonicalTicket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.Key()] = *t
	return nil
}

func (f *fakeTicketRepo) Update(_ context.Context, t *domain.CanonicalTicket, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[t.Key()]; !ok {
		return pgx.ErrNoRows
	}
	f.tickets[t.Key()] = *t
	return nil
}

func (f *fakeTicketRepo) ListDue(_ context.Context, now time.Time, _ int) ([]domain.CanonicalTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.CanonicalTicket
	for _, t := range f.tickets {
		if !t.NextSyncAt.After(now) {
			due = append(due, t)
		}
	}
	return due, nil
}

func (f *fakeTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.CanonicalTicket, error) {
	return nil, nil
}

func (f *fakeTicketRepo) UpdateSyncSchedule(_ context.Context, key domain.TicketKey, lastSyncedAt, nextSyncAt time.Time, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[key]
	if !ok {
		return pgx.ErrNoRows
	}
	t.LastSyncedAt = lastSyncedAt
	t.NextSyncAt = nextSyncAt
	t.SyncPriority = priority
	f.tickets[key] = t
	return nil
}

type fakeFetcher struct {
	result connector.FetchResult
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ []domain.CanonicalStatus) connector.FetchResult {
	return f.result
}

// fakeReconciler inserts tickets into the repo so rescheduling has
// something to act on, and supports scripted failures.
type fakeReconciler struct {
	tickets  *fakeTicketRepo
	status   domain.CanonicalStatus
	failIDs  map[string]bool
	mu       sync.Mutex
	outcomes map[string]reconciler.Outcome
}

func (f *fakeReconciler) Reconcile(ctx context.Context, raw connector.RawTicket, force bool, now time.Time) (reconciler.Outcome, error) {
	if f.failIDs[raw.SourceID] {
		return reconciler.OutcomeSkipped, errors.New("reconcile failed for " + raw.SourceID)
	}
	key := domain.TicketKey{SourceInstance: raw.SourceInstance, SourceID: raw.SourceID}
	outcome := reconciler.OutcomeInserted
	if _, err := f.tickets.GetByKey(ctx, key); err == nil {
		outcome = reconciler.OutcomeUpdated
	}
	ticket := domain.CanonicalTicket{
		SourceInstance:     raw.SourceInstance,
		SourceID:           raw.SourceID,
		CanonicalStatus:    f.status,
		CreatedAt:          raw.CreatedAt,
		LastSourceUpdateAt: raw.UpdatedAt,
		LastSyncedAt:       now,
	}
	_ = f.tickets.Insert(ctx, &ticket)
	f.mu.Lock()
	f.outcomes[raw.SourceID] = outcome
	f.mu.Unlock()
	return outcome, nil
}

func baseTime() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func raw(id string) connector.RawTicket {
	return connector.RawTicket{
		SourceInstance: "durban",
		SourceID:       id,
		RawStatus:      "In Repair",
		Assignee:       "Thabo M",
		CreatedAt:      baseTime(),
		UpdatedAt:      baseTime().Add(time.Hour),
	}
}

type harness struct {
	orch    *Orchestrator
	ops     *fakeOpsRepo
	tickets *fakeTicketRepo
	rec     *fakeReconciler
}

func newHarness(t *testing.T, result connector.FetchResult, failIDs map[string]bool) *harness {
	t.Helper()
	ops := newFakeOpsRepo()
	tickets := newFakeTicketRepo()
	rec := &fakeReconciler{
		tickets:  tickets,
		status:   domain.StatusInProgress,
		failIDs:  failIDs,
		outcomes: make(map[string]reconciler.Outcome),
	}
	filter := policy.NewFilter(map[string]policy.SourcePolicy{
		"durban": {DeniedTechnicians: []string{"Banned Tech"}},
	})
	orch := New(ops, tickets, &fakeFetcher{result: result}, rec, filter, nil, Config{
		Concurrency:    2,
		PassBudget:     time.Minute,
		ClaimStaleness: 30 * time.Minute,
	}, zap.NewNop())
	orch.now = func() time.Time { return baseTime().Add(2 * time.Hour) }
	return &harness{orch: orch, ops: ops, tickets: tickets, rec: rec}
}

func TestRunOnce_CountsOutcomes(t *testing.T) {
	banned := raw("3")
	banned.Assignee = "Banned Tech"
	h := newHarness(t, connector.FetchResult{
		Tickets: []connector.RawTicket{raw("1"), raw("2"), banned},
	}, map[string]bool{"2": true})

	result, err := h.orch.RunOnce(context.Background(), RunRequest{Kind: domain.SyncKindIncremental})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("pass not accepted: %+v", result)
	}

	op, err := h.ops.GetByID(context.Background(), result.OperationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if op.Counters.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", op.Counters.Inserted)
	}
	if op.Counters.Errors != 1 {
		t.Errorf("errors = %d, want 1", op.Counters.Errors)
	}
	if op.Counters.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (policy filtered)", op.Counters.Skipped)
	}
	if op.Status != domain.SyncStatusFailed {
		t.Errorf("status = %s, want failed when errors occurred", op.Status)
	}
	// The successful insert is preserved despite the failed pass.
	if _, err := h.tickets.GetByKey(context.Background(), domain.TicketKey{SourceInstance: "durban", SourceID: "1"}); err != nil {
		t.Error("successfully reconciled ticket was not preserved")
	}
}

func TestRunOnce_CleanPassCompletes(t *testing.T) {
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{raw("1")}}, nil)

	result, err := h.orch.RunOnce(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	op, _ := h.ops.GetByID(context.Background(), result.OperationID)
	if op.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %s, want completed", op.Status)
	}
	if op.CompletedAt == nil {
		t.Error("completed operation missing CompletedAt")
	}
}

func TestTrigger_RejectedWhileRunning(t *testing.T) {
	h := newHarness(t, connector.FetchResult{}, nil)

	// Simulate a pass already running.
	running := &domain.SyncOperation{ID: "op-running", Kind: domain.SyncKindIncremental, StartedAt: h.orch.now()}
	if claim, _ := h.ops.Claim(context.Background(), running, 30*time.Minute); !claim.Claimed {
		t.Fatal("setup claim failed")
	}

	result, err := h.orch.Trigger(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if result.Accepted {
		t.Fatal("second pass accepted while one is running")
	}
	if result.RunningID != "op-running" {
		t.Errorf("RunningID = %q, want op-running", result.RunningID)
	}
	if result.Reason == "" {
		t.Error("rejection must carry a reason")
	}
}

func TestRunOnce_MutualExclusionUnderConcurrency(t *testing.T) {
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{raw("1")}}, nil)

	const attempts = 8
	var wg sync.WaitGroup
	accepted := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.orch.RunOnce(context.Background(), RunRequest{})
			if err != nil {
				t.Errorf("RunOnce: %v", err)
				return
			}
			if result.Accepted {
				accepted <- result.OperationID
			}
		}()
	}
	wg.Wait()
	close(accepted)

	// Sequential acceptance is fine (each pass finishes fast); what must
	// never happen is two operations running at once, which the fake repo
	// enforces by construction. Every accepted pass must be finalized.
	for id := range accepted {
		op, err := h.ops.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID(%s): %v", id, err)
		}
		if op.Status == domain.SyncStatusRunning {
			t.Errorf("operation %s left running", id)
		}
	}
}

func TestRunOnce_NotDueTicketSkipped(t *testing.T) {
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{raw("1")}}, nil)

	// Ticket already stored and scheduled for the future.
	existing := domain.CanonicalTicket{
		SourceInstance:     "durban",
		SourceID:           "1",
		CanonicalStatus:    domain.StatusInProgress,
		CreatedAt:          baseTime(),
		LastSourceUpdateAt: baseTime(),
		NextSyncAt:         h.orch.now().Add(time.Hour),
	}
	_ = h.tickets.Insert(context.Background(), &existing)

	result, _ := h.orch.RunOnce(context.Background(), RunRequest{Kind: domain.SyncKindIncremental})
	op, _ := h.ops.GetByID(context.Background(), result.OperationID)
	if op.Counters.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 (not due)", op.Counters.Skipped)
	}
	if op.Counters.Updated != 0 {
		t.Errorf("updated = %d, want 0", op.Counters.Updated)
	}
}

func TestRunOnce_FullPassIgnoresDueness(t *testing.T) {
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{raw("1")}}, nil)

	existing := domain.CanonicalTicket{
		SourceInstance:  "durban",
		SourceID:        "1",
		CanonicalStatus: domain.StatusInProgress,
		CreatedAt:       baseTime(),
		NextSyncAt:      h.orch.now().Add(time.Hour),
	}
	_ = h.tickets.Insert(context.Background(), &existing)

	result, _ := h.orch.RunOnce(context.Background(), RunRequest{Kind: domain.SyncKindFull})
	op, _ := h.ops.GetByID(context.Background(), result.OperationID)
	if op.Counters.Updated != 1 {
		t.Errorf("updated = %d, want 1 under full resync", op.Counters.Updated)
	}
}

func TestRunOnce_ReschedulesProcessedTickets(t *testing.T) {
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{raw("1")}}, nil)

	_, err := h.orch.RunOnce(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	stored, err := h.tickets.GetByKey(context.Background(), domain.TicketKey{SourceInstance: "durban", SourceID: "1"})
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	wantNext := h.orch.now().Add(15 * time.Minute)
	if !stored.NextSyncAt.Equal(wantNext) {
		t.Errorf("NextSyncAt = %s, want %s for active ticket", stored.NextSyncAt, wantNext)
	}
	if stored.SyncPriority != 1 {
		t.Errorf("priority = %d, want 1 for active ticket", stored.SyncPriority)
	}
}

func TestRunOnce_DateRangeFilter(t *testing.T) {
	old := raw("1")
	old.CreatedAt = baseTime().AddDate(0, -2, 0)
	recent := raw("2")
	h := newHarness(t, connector.FetchResult{Tickets: []connector.RawTicket{old, recent}}, nil)

	from := baseTime().AddDate(0, -1, 0)
	result, _ := h.orch.RunOnce(context.Background(), RunRequest{From: &from})
	op, _ := h.ops.GetByID(context.Background(), result.OperationID)
	if op.Counters.Processed != 1 {
		t.Errorf("processed = %d, want 1 (range filtered)", op.Counters.Processed)
	}
}

func TestRunOnce_FetchErrorsSurfaced(t *testing.T) {
	h := newHarness(t, connector.FetchResult{
		Tickets: []connector.RawTicket{raw("1")},
		Errors:  []string{"capetown/In Repair: connection refused"},
	}, nil)

	result, _ := h.orch.RunOnce(context.Background(), RunRequest{})
	op, _ := h.ops.GetByID(context.Background(), result.OperationID)
	if op.Status != domain.SyncStatusFailed {
		t.Errorf("status = %s, want failed on connector errors", op.Status)
	}
	found := false
	for _, msg := range op.ErrorLog {
		if msg == "capetown/In Repair: connection refused" {
			found = true
		}
	}
	if !found {
		t.Errorf("connector error missing from log: %v", op.ErrorLog)
	}
	if op.Counters.Inserted != 1 {
		t.Error("healthy slice results must survive a failing slice")
	}
}

func TestNextSyncDelay(t *testing.T) {
	cases := []struct {
		name   string
		status domain.CanonicalStatus
		age    time.Duration
		want   time.Duration
	}{
		{"active", domain.StatusInProgress, time.Hour, 15 * time.Minute},
		{"rework is active", domain.StatusAwaitingRework, time.Hour, 15 * time.Minute},
		{"waiting", domain.StatusAwaitingAuthorization, time.Hour, time.Hour},
		{"recent terminal", domain.StatusCompleted, 24 * time.Hour, 24 * time.Hour},
		{"old terminal", domain.StatusCompleted, 60 * 24 * time.Hour, 365 * 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := NextSyncDelay(tc.status, tc.age); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}
