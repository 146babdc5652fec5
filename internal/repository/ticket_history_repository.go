package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// TicketHistoryRepository stores status audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	base
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool, timeout time.Duration) TicketHistoryRepository {
	return &ticketHistoryRepository{base{pool: pool, timeout: timeout}}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return insertHistory(ctx, r.pool, history)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, tenantID, ticketID string) ([]domain.TicketHistory, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id, tenant_id, ticket_id, changed_by, old_status, new_status, created_at
        FROM ticket_history WHERE tenant_id=$1 AND ticket_id=$2 ORDER BY created_at ASC, id`
	rows, err := r.pool.Query(ctx, query, tenantID, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TenantID,
			&history.TicketID,
			&history.ChangedBy,
			&history.OldStatus,
			&history.NewStatus,
			&history.CreatedAt,
		); err != nil {
			return nil, classify(err)
		}
		result = append(result, history)
	}
	return result, classify(rows.Err())
}

func insertHistory(ctx context.Context, q querier, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (id, tenant_id, ticket_id, changed_by, old_status, new_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return classify(q.QueryRow(ctx, query,
		history.ID,
		history.TenantID,
		history.TicketID,
		history.ChangedBy,
		history.OldStatus,
		history.NewStatus,
	).Scan(&history.CreatedAt))
}
