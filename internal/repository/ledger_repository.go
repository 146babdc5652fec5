package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

const civilDate = "2006-01-02"

// LedgerFilter bounds a ledger listing. From is inclusive and To exclusive,
// both compared as calendar dates in their own location.
type LedgerFilter struct {
	From      time.Time
	To        time.Time
	TicketRef string
	Limit     int
	Offset    int
}

// LedgerRepository is append-only; entries are never updated or removed.
type LedgerRepository interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.LedgerEntry, error)
	// List returns matching entries newest first.
	List(ctx context.Context, pred visibility.Predicate, filter LedgerFilter) ([]domain.LedgerEntry, error)
}

type ledgerRepository struct {
	base
}

// NewLedgerRepository instantiates repository.
func NewLedgerRepository(pool *pgxpool.Pool, timeout time.Duration) LedgerRepository {
	return &ledgerRepository{base{pool: pool, timeout: timeout}}
}

const ledgerColumns = `id, tenant_id, team_id, entry_type, description, amount, entry_date, created_by, ticket_ref, created_at`

func (r *ledgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return insertLedgerEntry(ctx, r.pool, entry)
}

func (r *ledgerRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.LedgerEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE tenant_id=$1 AND id=$2`
	return scanLedgerEntry(r.pool.QueryRow(ctx, query, tenantID, id))
}

func (r *ledgerRepository) List(ctx context.Context, pred visibility.Predicate, filter LedgerFilter) ([]domain.LedgerEntry, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, ledgerScope, nil)
	clauses := []string{where}
	if !filter.From.IsZero() {
		args = append(args, filter.From.Format(civilDate))
		clauses = append(clauses, fmt.Sprintf("entry_date >= $%d::date", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.Format(civilDate))
		clauses = append(clauses, fmt.Sprintf("entry_date < $%d::date", len(args)))
	}
	if filter.TicketRef != "" {
		args = append(args, filter.TicketRef)
		clauses = append(clauses, fmt.Sprintf("ticket_ref=$%d", len(args)))
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY entry_date DESC, created_at DESC` + pageClause(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, classify(rows.Err())
}

func insertLedgerEntry(ctx context.Context, q querier, entry *domain.LedgerEntry) error {
	const query = `
        INSERT INTO ledger_entries (id, tenant_id, team_id, entry_type, description, amount, entry_date, created_by, ticket_ref)
        VALUES ($1,$2,$3,$4,$5,$6,$7::date,$8,$9)
        RETURNING created_at`
	return classify(q.QueryRow(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.TeamID,
		entry.Type,
		entry.Description,
		entry.Amount,
		entry.Date.Format(civilDate),
		entry.CreatedBy,
		entry.TicketRef,
	).Scan(&entry.CreatedAt))
}

// scanLedgerEntry reads entry_date as UTC midnight of the stored calendar day.
func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	if err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.TeamID,
		&entry.Type,
		&entry.Description,
		&entry.Amount,
		&entry.Date,
		&entry.CreatedBy,
		&entry.TicketRef,
		&entry.CreatedAt,
	); err != nil {
		return nil, classify(err)
	}
	return &entry, nil
}
