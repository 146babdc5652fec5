package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

// ChangeChannel is the Postgres NOTIFY channel the table triggers publish on.
const ChangeChannel = "fix_manager_changes"

// ChangeFeed streams store mutations in commit order. The returned channel
// is closed when the feed breaks or ctx ends; callers must resubscribe and
// resync after a close they did not cause.
type ChangeFeed interface {
	Listen(ctx context.Context) (<-chan domain.Change, error)
}

type pgChangeFeed struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewChangeFeed returns a feed backed by LISTEN/NOTIFY on a dedicated connection.
func NewChangeFeed(pool *pgxpool.Pool, logger *zap.Logger) ChangeFeed {
	return &pgChangeFeed{pool: pool, logger: logger}
}

func (f *pgChangeFeed) Listen(ctx context.Context) (<-chan domain.Change, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, classify(err)
	}

	out := make(chan domain.Change, 64)
	go func() {
		defer close(out)
		// The connection still holds the LISTEN registration; drop it rather
		// than hand it back to the pool.
		defer func() {
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Warn("change feed interrupted", zap.Error(err))
				}
				return
			}
			var change domain.Change
			if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
				f.logger.Warn("discarding malformed change", zap.String("payload", notification.Payload), zap.Error(err))
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
