package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// StatusEventRepository stores append-only status transition records.
type StatusEventRepository interface {
	Append(ctx context.Context, event *domain.StatusChangeEvent) error
	ListByTicket(ctx context.Context, key domain.TicketKey) ([]domain.StatusChangeEvent, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.StatusChangeEvent, error)
}

type statusEventRepository struct {
	pool *pgxpool.Pool
}

// NewStatusEventRepository builds repository.
func NewStatusEventRepository(pool *pgxpool.Pool) StatusEventRepository {
	return &statusEventRepository{pool: pool}
}

func (r *statusEventRepository) Append(ctx context.Context, event *domain.StatusChangeEvent) error {
	const query = `
        INSERT INTO status_change_events (id, source_instance, source_id, from_status, to_status, changed_at, changed_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.SourceInstance,
		event.SourceID,
		string(event.FromStatus),
		string(event.ToStatus),
		event.ChangedAt,
		event.ChangedBy,
	)
	return err
}

func (r *statusEventRepository) ListByTicket(ctx context.Context, key domain.TicketKey) ([]domain.StatusChangeEvent, error) {
	const query = `
        SELECT id, source_instance, source_id, from_status, to_status, changed_at, changed_by
        FROM status_change_events
        WHERE source_instance=$1 AND source_id=$2 ORDER BY changed_at ASC`
	rows, err := r.pool.Query(ctx, query, key.SourceInstance, key.SourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatusEvents(rows)
}

func (r *statusEventRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.StatusChangeEvent, error) {
	const query = `
        SELECT id, source_instance, source_id, from_status, to_status, changed_at, changed_by
        FROM status_change_events
        WHERE changed_at >= $1 AND changed_at <= $2 ORDER BY changed_at ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatusEvents(rows)
}

func scanStatusEvents(rows pgx.Rows) ([]domain.StatusChangeEvent, error) {
	var result []domain.StatusChangeEvent
	for rows.Next() {
		var e domain.StatusChangeEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.SourceInstance, &e.SourceID, &from, &to, &e.ChangedAt, &e.ChangedBy); err != nil {
			return nil, err
		}
		e.FromStatus = domain.CanonicalStatus(from)
		e.ToStatus = domain.CanonicalStatus(to)
		result = append(result, e)
	}
	return result, rows.Err()
}
