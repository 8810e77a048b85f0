package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// ClaimResult reports the outcome of an attempt to start a sync pass.
type ClaimResult struct {
	Claimed bool
	// RunningID is the id of the already-running operation when the claim
	// was rejected.
	RunningID string
}

// SyncOperationRepository persists sync pass execution records. The claim
// is a conditional insert against the shared store, not an in-process
// lock, because orchestrators may run in different processes.
type SyncOperationRepository interface {
	Claim(ctx context.Context, op *domain.SyncOperation, staleness time.Duration) (ClaimResult, error)
	Finalize(ctx context.Context, op *domain.SyncOperation) error
	GetByID(ctx context.Context, id string) (*domain.SyncOperation, error)
	ListRecent(ctx context.Context, limit int) ([]domain.SyncOperation, error)
}

type syncOperationRepository struct {
	pool *pgxpool.Pool
}

// NewSyncOperationRepository builds repository.
func NewSyncOperationRepository(pool *pgxpool.Pool) SyncOperationRepository {
	return &syncOperationRepository{pool: pool}
}

func (r *syncOperationRepository) Claim(ctx context.Context, op *domain.SyncOperation, staleness time.Duration) (ClaimResult, error) {
	// A pass stuck in running past the staleness window is abandoned; fail
	// it over so it stops holding the claim.
	const failStale = `
        UPDATE sync_operations
        SET status = 'failed', completed_at = $1,
            error_log = error_log || '["abandoned past staleness window"]'::jsonb
        WHERE status = 'running' AND started_at <= $2`
	if _, err := r.pool.Exec(ctx, failStale, op.StartedAt, op.StartedAt.Add(-staleness)); err != nil {
		return ClaimResult{}, err
	}

	// The NOT EXISTS resolves the common case without an error round-trip,
	// but two concurrent claims can both pass it under read committed. The
	// partial unique index on running rows is what actually decides the
	// race; the loser surfaces as a unique violation.
	const query = `
        INSERT INTO sync_operations (id, kind, status, started_at, counters, error_log)
        SELECT $1, $2, 'running', $3, '{}'::jsonb, '[]'::jsonb
        WHERE NOT EXISTS (
            SELECT 1 FROM sync_operations WHERE status = 'running'
        )`
	cmd, err := r.pool.Exec(ctx, query, op.ID, string(op.Kind), op.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return r.rejected(ctx)
		}
		return ClaimResult{}, err
	}
	if cmd.RowsAffected() == 1 {
		op.Status = domain.SyncStatusRunning
		return ClaimResult{Claimed: true}, nil
	}
	return r.rejected(ctx)
}

func (r *syncOperationRepository) rejected(ctx context.Context) (ClaimResult, error) {
	var runningID string
	const running = `
        SELECT id FROM sync_operations
        WHERE status = 'running' ORDER BY started_at DESC LIMIT 1`
	if err := r.pool.QueryRow(ctx, running).Scan(&runningID); err != nil && err != pgx.ErrNoRows {
		return ClaimResult{}, err
	}
	return ClaimResult{Claimed: false, RunningID: runningID}, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *syncOperationRepository) Finalize(ctx context.Context, op *domain.SyncOperation) error {
	const query = `
        UPDATE sync_operations SET status=$2, completed_at=$3, counters=$4, error_log=$5
        WHERE id=$1 AND status='running'`
	cmd, err := r.pool.Exec(ctx, query, op.ID, string(op.Status), op.CompletedAt, op.Counters, op.ErrorLog)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *syncOperationRepository) GetByID(ctx context.Context, id string) (*domain.SyncOperation, error) {
	const query = `
        SELECT id, kind, status, started_at, completed_at, counters, error_log
        FROM sync_operations WHERE id=$1`
	return scanSyncOperation(r.pool.QueryRow(ctx, query, id))
}

func (r *syncOperationRepository) ListRecent(ctx context.Context, limit int) ([]domain.SyncOperation, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, kind, status, started_at, completed_at, counters, error_log
        FROM sync_operations ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncOperation
	for rows.Next() {
		op, err := scanSyncOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *op)
	}
	return result, rows.Err()
}

func scanSyncOperation(row rowScanner) (*domain.SyncOperation, error) {
	var op domain.SyncOperation
	var kind, status string
	if err := row.Scan(
		&op.ID,
		&kind,
		&status,
		&op.StartedAt,
		&op.CompletedAt,
		&op.Counters,
		&op.ErrorLog,
	); err != nil {
		return nil, err
	}
	op.Kind = domain.SyncKind(kind)
	op.Status = domain.SyncStatus(status)
	return &op, nil
}
