package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// TicketFilter captures list and search parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	AssignedTo string
	CustomerID string
	Search     string
	Limit      int
	Offset     int
}

// StatusChange is a compare-and-set status write together with the records
// that must commit atomically with it.
type StatusChange struct {
	TenantID        string
	TicketID        string
	ExpectedVersion int64
	Status          domain.TicketStatus
	Entries         []domain.LedgerEntry
	History         *domain.TicketHistory
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// UpdateFields overwrites every editable field. Status and team are never
	// touched; the version is bumped.
	UpdateFields(ctx context.Context, ticket *domain.Ticket) error
	// UpdateStatusIfVersion applies change only when the stored version still
	// equals ExpectedVersion. Returns ErrVersionConflict when it does not.
	UpdateStatusIfVersion(ctx context.Context, change StatusChange) (*domain.Ticket, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	List(ctx context.Context, pred visibility.Predicate, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, pred visibility.Predicate) (map[domain.TicketStatus]int, error)
	CountOpenByCustomer(ctx context.Context, tenantID, customerID string) (int, error)
}

type ticketRepository struct {
	base
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool, timeout time.Duration) TicketRepository {
	return &ticketRepository{base{pool: pool, timeout: timeout}}
}

const ticketColumns = `id, tenant_id, short_id, customer_id, customer_name, device, unlock, imei, accessories,
               aesthetic_condition, cloud, issue_type, issue_description, internal_notes, price, deposit,
               assigned_to, status, arrival_date, created_by, team_id, version, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO tickets (id, tenant_id, short_id, customer_id, customer_name, device, unlock, imei, accessories,
            aesthetic_condition, cloud, issue_type, issue_description, internal_notes, price, deposit,
            assigned_to, status, arrival_date, created_by, team_id, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,1)
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.TenantID,
		ticket.ShortID,
		ticket.CustomerID,
		ticket.CustomerName,
		ticket.Device,
		ticket.Unlock,
		ticket.IMEI,
		ticket.Accessories,
		ticket.AestheticCondition,
		ticket.Cloud,
		ticket.IssueType,
		ticket.IssueDescription,
		ticket.InternalNotes,
		ticket.Price,
		ticket.Deposit,
		ticket.AssignedTo,
		ticket.Status,
		ticket.ArrivalDate,
		ticket.CreatedBy,
		ticket.TeamID,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	return classify(err)
}

func (r *ticketRepository) UpdateFields(ctx context.Context, ticket *domain.Ticket) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE tickets SET customer_id=$1, customer_name=$2, device=$3, unlock=$4, imei=$5, accessories=$6,
            aesthetic_condition=$7, cloud=$8, issue_type=$9, issue_description=$10, internal_notes=$11,
            price=$12, deposit=$13, assigned_to=$14, version=version+1, updated_at=NOW()
        WHERE tenant_id=$15 AND id=$16
        RETURNING ` + ticketColumns
	updated, err := scanTicket(r.pool.QueryRow(ctx, query,
		ticket.CustomerID,
		ticket.CustomerName,
		ticket.Device,
		ticket.Unlock,
		ticket.IMEI,
		ticket.Accessories,
		ticket.AestheticCondition,
		ticket.Cloud,
		ticket.IssueType,
		ticket.IssueDescription,
		ticket.InternalNotes,
		ticket.Price,
		ticket.Deposit,
		ticket.AssignedTo,
		ticket.TenantID,
		ticket.ID,
	))
	if err != nil {
		return err
	}
	*ticket = *updated
	return nil
}

func (r *ticketRepository) UpdateStatusIfVersion(ctx context.Context, change StatusChange) (*domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
        UPDATE tickets SET status=$1, version=version+1, updated_at=NOW()
        WHERE tenant_id=$2 AND id=$3 AND version=$4
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(tx.QueryRow(ctx, query, change.Status, change.TenantID, change.TicketID, change.ExpectedVersion))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE tenant_id=$1 AND id=$2)`,
			change.TenantID, change.TicketID).Scan(&exists); err != nil {
			return nil, classify(err)
		}
		if exists {
			return nil, ErrVersionConflict
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	for i := range change.Entries {
		if err := insertLedgerEntry(ctx, tx, &change.Entries[i]); err != nil {
			return nil, err
		}
	}
	if change.History != nil {
		if err := insertHistory(ctx, tx, change.History); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND id=$2`
	return scanTicket(r.pool.QueryRow(ctx, query, tenantID, id))
}

func (r *ticketRepository) List(ctx context.Context, pred visibility.Predicate, filter TicketFilter) ([]domain.Ticket, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, ticketScope, nil)
	clauses := []string{where}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(customer_name) LIKE %s OR LOWER(short_id) LIKE %s OR LOWER(device->>'model') LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY arrival_date DESC, id` + pageClause(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context, pred visibility.Predicate) (map[domain.TicketStatus]int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, ticketScope, nil)
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets WHERE `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var (
			status domain.TicketStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, classify(err)
		}
		counts[status] = count
	}
	return counts, classify(rows.Err())
}

func (r *ticketRepository) CountOpenByCustomer(ctx context.Context, tenantID, customerID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE tenant_id=$1 AND customer_id=$2 AND status NOT IN ('Delivered','Archived')`
	var count int
	err := r.pool.QueryRow(ctx, query, tenantID, customerID).Scan(&count)
	return count, classify(err)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.ShortID,
		&ticket.CustomerID,
		&ticket.CustomerName,
		&ticket.Device,
		&ticket.Unlock,
		&ticket.IMEI,
		&ticket.Accessories,
		&ticket.AestheticCondition,
		&ticket.Cloud,
		&ticket.IssueType,
		&ticket.IssueDescription,
		&ticket.InternalNotes,
		&ticket.Price,
		&ticket.Deposit,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.ArrivalDate,
		&ticket.CreatedBy,
		&ticket.TeamID,
		&ticket.Version,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, classify(err)
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, classify(rows.Err())
}
