package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// WaitSampleRepository stores derived wait-time samples. Samples are
// recomputed on sync rather than corrected, so the latest sample per
// (ticket, entered_active_at) wins via keyed upsert.
type WaitSampleRepository interface {
	Upsert(ctx context.Context, sample *domain.WaitTimeSample) error
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.WaitTimeSample, error)
}

type waitSampleRepository struct {
	pool *pgxpool.Pool
}

// NewWaitSampleRepository builds repository.
func NewWaitSampleRepository(pool *pgxpool.Pool) WaitSampleRepository {
	return &waitSampleRepository{pool: pool}
}

func (r *waitSampleRepository) Upsert(ctx context.Context, sample *domain.WaitTimeSample) error {
	const query = `
        INSERT INTO wait_time_samples (id, source_instance, source_id, technician, waited_minutes, entered_active_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (source_instance, source_id, entered_active_at)
        DO UPDATE SET technician=EXCLUDED.technician, waited_minutes=EXCLUDED.waited_minutes`
	_, err := r.pool.Exec(ctx, query,
		sample.ID,
		sample.SourceInstance,
		sample.SourceID,
		sample.Technician,
		sample.WaitedMinutes,
		sample.EnteredActiveAt,
	)
	return err
}

func (r *waitSampleRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.WaitTimeSample, error) {
	const query = `
        SELECT id, source_instance, source_id, technician, waited_minutes, entered_active_at
        FROM wait_time_samples
        WHERE entered_active_at >= $1 AND entered_active_at <= $2
        ORDER BY entered_active_at ASC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WaitTimeSample
	for rows.Next() {
		var s domain.WaitTimeSample
		if err := rows.Scan(&s.ID, &s.SourceInstance, &s.SourceID, &s.Technician, &s.WaitedMinutes, &s.EnteredActiveAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
