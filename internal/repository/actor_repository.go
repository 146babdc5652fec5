package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// ActorRepository persists operators of a tenant.
type ActorRepository interface {
	// CreateIfAbsent inserts actor unless its id already exists and reports
	// whether a row was written. Safe to race.
	CreateIfAbsent(ctx context.Context, actor *domain.Actor) (bool, error)
	Create(ctx context.Context, actor *domain.Actor) error
	Update(ctx context.Context, actor *domain.Actor) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Actor, error)
	GetByUsername(ctx context.Context, tenantID, username string) (*domain.Actor, error)
	ListReports(ctx context.Context, tenantID, creatorID string) ([]string, error)
	List(ctx context.Context, pred visibility.Predicate) ([]domain.Actor, error)
}

type actorRepository struct {
	base
}

// NewActorRepository returns a Postgres-backed implementation.
func NewActorRepository(pool *pgxpool.Pool, timeout time.Duration) ActorRepository {
	return &actorRepository{base{pool: pool, timeout: timeout}}
}

const actorColumns = `tenant_id, id, username, role, created_by, permissions, password_hash, created_at, updated_at`

func (r *actorRepository) CreateIfAbsent(ctx context.Context, actor *domain.Actor) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO actors (tenant_id, id, username, role, created_by, permissions, password_hash)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		actor.TenantID,
		actor.ID,
		actor.Username,
		actor.Role,
		actor.CreatedBy,
		permissionStrings(actor.Permissions),
		actor.PasswordHash,
	)
	if err != nil {
		return false, classify(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *actorRepository) Create(ctx context.Context, actor *domain.Actor) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO actors (tenant_id, id, username, role, created_by, permissions, password_hash)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		actor.TenantID,
		actor.ID,
		actor.Username,
		actor.Role,
		actor.CreatedBy,
		permissionStrings(actor.Permissions),
		actor.PasswordHash,
	).Scan(&actor.CreatedAt, &actor.UpdatedAt)
	return classify(err)
}

func (r *actorRepository) Update(ctx context.Context, actor *domain.Actor) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE actors SET username=$1, role=$2, permissions=$3, password_hash=$4, updated_at=NOW()
        WHERE tenant_id=$5 AND id=$6
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		actor.Username,
		actor.Role,
		permissionStrings(actor.Permissions),
		actor.PasswordHash,
		actor.TenantID,
		actor.ID,
	).Scan(&actor.UpdatedAt)
	return classify(err)
}

func (r *actorRepository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM actors WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *actorRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Actor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + actorColumns + ` FROM actors WHERE tenant_id=$1 AND id=$2`
	return scanActor(r.pool.QueryRow(ctx, query, tenantID, id))
}

func (r *actorRepository) GetByUsername(ctx context.Context, tenantID, username string) (*domain.Actor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + actorColumns + ` FROM actors WHERE tenant_id=$1 AND username=$2`
	return scanActor(r.pool.QueryRow(ctx, query, tenantID, username))
}

func (r *actorRepository) ListReports(ctx context.Context, tenantID, creatorID string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id FROM actors WHERE tenant_id=$1 AND created_by=$2 ORDER BY id`, tenantID, creatorID)
	if err != nil {
		return nil, classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, classify(err)
}

func (r *actorRepository) List(ctx context.Context, pred visibility.Predicate) ([]domain.Actor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	where, args := scopeClause(pred, actorScope, nil)
	rows, err := r.pool.Query(ctx, `SELECT `+actorColumns+` FROM actors WHERE `+where+` ORDER BY username`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []domain.Actor
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *actor)
	}
	return result, classify(rows.Err())
}

func scanActor(row pgx.Row) (*domain.Actor, error) {
	var (
		actor       domain.Actor
		permissions []string
	)
	if err := row.Scan(
		&actor.TenantID,
		&actor.ID,
		&actor.Username,
		&actor.Role,
		&actor.CreatedBy,
		&permissions,
		&actor.PasswordHash,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	); err != nil {
		return nil, classify(err)
	}
	for _, p := range permissions {
		actor.Permissions = append(actor.Permissions, domain.Permission(p))
	}
	return &actor, nil
}

func permissionStrings(perms []domain.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
