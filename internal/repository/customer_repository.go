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

// CustomerFilter narrows a customer listing.
type CustomerFilter struct {
	Search string
	Limit  int
	Offset int
}

// CustomerRepository encapsulates customer persistence.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	// Update is last-write-wins and bumps the version.
	Update(ctx context.Context, customer *domain.Customer) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Customer, error)
	FindByPhone(ctx context.Context, tenantID, teamID, phone string) (*domain.Customer, error)
	FindByEmail(ctx context.Context, tenantID, teamID, email string) (*domain.Customer, error)
	CountByTeam(ctx context.Context, tenantID, teamID string) (int, error)
	Count(ctx context.Context, pred visibility.Predicate) (int, error)
	List(ctx context.Context, pred visibility.Predicate, filter CustomerFilter) ([]domain.Customer, error)
}

type customerRepository struct {
	base
}

// NewCustomerRepository instantiates repository.
func NewCustomerRepository(pool *pgxpool.Pool, timeout time.Duration) CustomerRepository {
	return &customerRepository{base{pool: pool, timeout: timeout}}
}

const customerColumns = `id, tenant_id, team_id, name, phone, email, address, created_by, version, created_at, updated_at`

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO customers (id, tenant_id, team_id, name, phone, email, address, created_by, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)
        RETURNING version, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		customer.ID,
		customer.TenantID,
		customer.TeamID,
		customer.Name,
		customer.Phone,
		customer.Email,
		customer.Address,
		customer.CreatedBy,
	).Scan(&customer.Version, &customer.CreatedAt, &customer.UpdatedAt)
	return classify(err)
}

func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE customers SET name=$1, phone=$2, email=$3, address=$4, version=version+1, updated_at=NOW()
        WHERE tenant_id=$5 AND id=$6
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		customer.Name,
		customer.Phone,
		customer.Email,
		customer.Address,
		customer.TenantID,
		customer.ID,
	).Scan(&customer.Version, &customer.UpdatedAt)
	return classify(err)
}

func (r *customerRepository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Customer, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + customerColumns + ` FROM customers WHERE tenant_id=$1 AND id=$2`
	return scanCustomer(r.pool.QueryRow(ctx, query, tenantID, id))
}

func (r *customerRepository) FindByPhone(ctx context.Context, tenantID, teamID, phone string) (*domain.Customer, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + customerColumns + ` FROM customers
        WHERE tenant_id=$1 AND team_id=$2 AND phone=$3 AND phone <> ''
        ORDER BY created_at ASC LIMIT 1`
	return scanCustomer(r.pool.QueryRow(ctx, query, tenantID, teamID, phone))
}

func (r *customerRepository) FindByEmail(ctx context.Context, tenantID, teamID, email string) (*domain.Customer, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + customerColumns + ` FROM customers
        WHERE tenant_id=$1 AND team_id=$2 AND LOWER(email)=LOWER($3) AND email <> ''
        ORDER BY created_at ASC LIMIT 1`
	return scanCustomer(r.pool.QueryRow(ctx, query, tenantID, teamID, email))
}

func (r *customerRepository) CountByTeam(ctx context.Context, tenantID, teamID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE tenant_id=$1 AND team_id=$2`, tenantID, teamID).Scan(&count)
	return count, classify(err)
}

func (r *customerRepository) Count(ctx context.Context, pred visibility.Predicate) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, customerScope, nil)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE `+where, args...).Scan(&count)
	return count, classify(err)
}

func (r *customerRepository) List(ctx context.Context, pred visibility.Predicate, filter CustomerFilter) ([]domain.Customer, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, customerScope, nil)
	clauses := []string{where}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+strings.ToLower(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %s OR phone LIKE %s OR LOWER(email) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY name ASC` + pageClause(filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *customer)
	}
	return result, classify(rows.Err())
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var customer domain.Customer
	if err := row.Scan(
		&customer.ID,
		&customer.TenantID,
		&customer.TeamID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.Address,
		&customer.CreatedBy,
		&customer.Version,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, classify(err)
	}
	return &customer, nil
}
