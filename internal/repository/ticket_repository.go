package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
)

// TicketFilter captures read-surface and analytics query parameters.
type TicketFilter struct {
	SourceInstance *string
	Statuses       []domain.CanonicalStatus
	Technician     *string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}

// TicketRepository encapsulates canonical ticket persistence. Writes are
// keyed by (source_instance, source_id); updates are last-write-wins on
// last_source_update_at so overlapping passes stay idempotent.
type TicketRepository interface {
	GetByKey(ctx context.Context, key domain.TicketKey) (*domain.CanonicalTicket, error)
	Insert(ctx context.Context, ticket *domain.CanonicalTicket) error
	Update(ctx context.Context, ticket *domain.CanonicalTicket, force bool) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CanonicalTicket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.CanonicalTicket, error)
	UpdateSyncSchedule(ctx context.Context, key domain.TicketKey, lastSyncedAt, nextSyncAt time.Time, priority int) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `source_instance, source_id, number, subject, description, device_info, comments,
       raw_status, canonical_status, assigned_technician,
       created_at, last_source_update_at, total_business_minutes, active_work_minutes, waiting_minutes, timing_estimated,
       is_rework, rework_reason, rework_count, quality_score,
       last_synced_at, next_sync_at, sync_priority`

func (r *ticketRepository) GetByKey(ctx context.Context, key domain.TicketKey) (*domain.CanonicalTicket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE source_instance=$1 AND source_id=$2`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, key.SourceInstance, key.SourceID)
	return scanTicketRow(row)
}

func (r *ticketRepository) Insert(ctx context.Context, ticket *domain.CanonicalTicket) error {
	query := fmt.Sprintf(`INSERT INTO tickets (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`, ticketColumns)
	_, err := r.pool.Exec(ctx, query, ticketArgs(ticket)...)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.CanonicalTicket, force bool) error {
	query := `
        UPDATE tickets SET number=$3, subject=$4, description=$5, device_info=$6, comments=$7,
            raw_status=$8, canonical_status=$9, assigned_technician=$10,
            created_at=$11, last_source_update_at=$12, total_business_minutes=$13,
            active_work_minutes=$14, waiting_minutes=$15, timing_estimated=$16,
            is_rework=$17, rework_reason=$18, rework_count=$19, quality_score=$20,
            last_synced_at=$21, next_sync_at=$22, sync_priority=$23
        WHERE source_instance=$1 AND source_id=$2`
	if !force {
		// Last-write-wins guard for overlapping passes.
		query += ` AND last_source_update_at <= $12`
	}
	cmd, err := r.pool.Exec(ctx, query, ticketArgs(ticket)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CanonicalTicket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE next_sync_at <= $1
        ORDER BY sync_priority ASC, next_sync_at ASC
        LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.CanonicalTicket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SourceInstance != nil {
		args = append(args, *filter.SourceInstance)
		clauses = append(clauses, fmt.Sprintf("source_instance=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			args = append(args, string(s))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("canonical_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Technician != nil {
		args = append(args, *filter.Technician)
		clauses = append(clauses, fmt.Sprintf("assigned_technician=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY last_source_update_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateSyncSchedule(ctx context.Context, key domain.TicketKey, lastSyncedAt, nextSyncAt time.Time, priority int) error {
	const query = `
        UPDATE tickets SET last_synced_at=$3, next_sync_at=$4, sync_priority=$5
        WHERE source_instance=$1 AND source_id=$2`
	cmd, err := r.pool.Exec(ctx, query, key.SourceInstance, key.SourceID, lastSyncedAt, nextSyncAt, priority)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func ticketArgs(t *domain.CanonicalTicket) []any {
	return []any{
		t.SourceInstance,
		t.SourceID,
		t.Number,
		t.Subject,
		t.Description,
		t.DeviceInfo,
		t.Comments,
		t.RawStatus,
		string(t.CanonicalStatus),
		t.AssignedTechnician,
		t.CreatedAt,
		t.LastSourceUpdateAt,
		t.TotalBusinessMinutesOpen,
		t.ActiveWorkMinutes,
		t.WaitingMinutes,
		t.TimingEstimated,
		t.IsRework,
		t.ReworkReason,
		t.ReworkCount,
		t.QualityScore,
		t.LastSyncedAt,
		t.NextSyncAt,
		t.SyncPriority,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketRow(row rowScanner) (*domain.CanonicalTicket, error) {
	var t domain.CanonicalTicket
	var canonical string
	if err := row.Scan(
		&t.SourceInstance,
		&t.SourceID,
		&t.Number,
		&t.Subject,
		&t.Description,
		&t.DeviceInfo,
		&t.Comments,
		&t.RawStatus,
		&canonical,
		&t.AssignedTechnician,
		&t.CreatedAt,
		&t.LastSourceUpdateAt,
		&t.TotalBusinessMinutesOpen,
		&t.ActiveWorkMinutes,
		&t.WaitingMinutes,
		&t.TimingEstimated,
		&t.IsRework,
		&t.ReworkReason,
		&t.ReworkCount,
		&t.QualityScore,
		&t.LastSyncedAt,
		&t.NextSyncAt,
		&t.SyncPriority,
	); err != nil {
		return nil, err
	}
	t.CanonicalStatus = domain.CanonicalStatus(canonical)
	return &t, nil
}

func scanTickets(rows pgx.Rows) ([]domain.CanonicalTicket, error) {
	var result []domain.CanonicalTicket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
