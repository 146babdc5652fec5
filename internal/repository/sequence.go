package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// Sequencer hands out strictly increasing numbers per tenant and name.
type Sequencer interface {
	Next(ctx context.Context, tenantID, name string) (int64, error)
}

type redisSequencer struct {
	client  *redis.Client
	start   int64
	timeout time.Duration
}

// NewRedisSequencer counts with INCR so every replica shares one sequence.
// The first value returned is start+1.
func NewRedisSequencer(client *redis.Client, start int64, timeout time.Duration) Sequencer {
	return &redisSequencer{client: client, start: start, timeout: timeout}
}

func (s *redisSequencer) Next(ctx context.Context, tenantID, name string) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	n, err := s.client.Incr(ctx, sequenceKey(tenantID, name)).Result()
	if err != nil {
		return 0, apperrors.NewUnavailable(fmt.Errorf("incr sequence %s: %w", name, err))
	}
	return s.start + n, nil
}

func sequenceKey(tenantID, name string) string {
	return fmt.Sprintf("fixmgr:%s:seq:%s", tenantID, name)
}

type pgSequencer struct {
	base
	start int64
}

// NewSequencer keeps counters in the sequences table, for deployments
// without Redis.
func NewSequencer(pool *pgxpool.Pool, start int64, timeout time.Duration) Sequencer {
	return &pgSequencer{base: base{pool: pool, timeout: timeout}, start: start}
}

func (s *pgSequencer) Next(ctx context.Context, tenantID, name string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO sequences (tenant_id, name, value) VALUES ($1, $2, 1)
        ON CONFLICT (tenant_id, name) DO UPDATE SET value = sequences.value + 1
        RETURNING value`
	var n int64
	if err := s.pool.QueryRow(ctx, query, tenantID, name).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return s.start + n, nil
}
