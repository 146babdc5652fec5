// Package propagation keeps predicate-filtered views of the store current
// from its change feed and hands updates to subscribers.
package propagation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const defaultMaxPending = 1024

// Options tunes a Hub.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxPending bounds the updates queued per subscription before they
	// collapse into a reset.
	MaxPending int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Hub consumes the change feed and routes each change to the
// subscriptions whose predicate matches the changed document.
type Hub struct {
	feed    repository.ChangeFeed
	loader  Loader
	logger  *zap.Logger
	metrics *observability.Metrics
	opts    Options

	mu        sync.Mutex
	subs      map[int]*Subscription
	nextID    int
	connected bool
}

// NewHub wires a hub. Run must be started for views to stay current.
func NewHub(feed repository.ChangeFeed, loader Loader, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = defaultMaxPending
	}
	return &Hub{
		feed:    feed,
		loader:  loader,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		opts:    opts,
		subs:    make(map[int]*Subscription),
	}
}

// Connected reports whether the feed is currently attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Subscribe opens a view of kind scoped to what actor may see. The view is
// loaded before Subscribe returns and closes itself when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, actor *domain.Actor, kind domain.ResourceKind) (*Subscription, error) {
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("unknown resource kind", map[string]any{"kind": kind})
	}
	pred := visibility.ScopeFor(actor, kind)
	sub := newSubscription(h, actor.ID, pred, h.opts.MaxPending)
	if pred.IsNone() {
		sub.loading = false
		sub.closed = true
		close(sub.done)
		return sub, nil
	}

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	sub.stale = !h.connected
	h.subs[sub.id] = sub
	h.mu.Unlock()
	if sub.stale {
		h.metrics.AddStaleViews(1)
	}

	sub.loadMu.Lock()
	docs, err := h.loader.Query(ctx, pred)
	if err == nil {
		sub.load(docs)
	}
	sub.loadMu.Unlock()
	if err != nil {
		sub.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, sub.Close)
	go func() {
		<-sub.done
		stop()
	}()
	return sub, nil
}

func (h *Hub) remove(id int, wasStale bool) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok && wasStale {
		h.metrics.AddStaleViews(-1)
	}
}

// Run follows the feed until ctx is done. A lost feed flags every view
// stale; after reconnecting every view is re-queried before it is marked
// fresh again.
func (h *Hub) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.opts.MinBackoff
	b.MaxInterval = h.opts.MaxBackoff

	for {
		err := h.follow(ctx, b)
		if ctx.Err() != nil {
			return nil
		}
		h.disconnect()
		wait := b.NextBackOff()
		h.logger.Warn("change feed lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

var errFeedClosed = errors.New("change feed closed")

// follow attaches to the feed, resyncs, and dispatches until the feed
// ends. It always returns a non-nil error unless ctx is done.
func (h *Hub) follow(ctx context.Context, b backoff.BackOff) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := h.feed.Listen(connCtx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()

	if err := h.resync(connCtx); err != nil {
		return err
	}
	b.Reset()
	h.logger.Info("change feed attached")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return errFeedClosed
			}
			if err := h.dispatch(connCtx, change); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) disconnect() {
	h.mu.Lock()
	h.connected = false
	subs := h.snapshotLocked()
	h.mu.Unlock()

	flipped := 0
	for _, sub := range subs {
		if sub.markStale() {
			flipped++
		}
	}
	h.metrics.AddStaleViews(int64(flipped))
}

// resync re-resolves every registered view's subscriber and re-queries
// the view. Views registered after the feed attached were loaded against
// it already.
func (h *Hub) resync(ctx context.Context) error {
	for _, sub := range h.subscriptions("") {
		if err := h.refresh(ctx, sub, true); err != nil {
			return err
		}
	}
	return nil
}

// rescope re-resolves the subscribers of a tenant after one of its actors
// changed. Only views whose predicate moved are re-queried.
func (h *Hub) rescope(ctx context.Context, tenantID string) error {
	for _, sub := range h.subscriptions(tenantID) {
		if err := h.refresh(ctx, sub, false); err != nil {
			return err
		}
	}
	return nil
}

// refresh recomputes sub's predicate from the subscriber as stored now.
// A subscriber that was deleted or can no longer see the kind loses the
// view.
func (h *Hub) refresh(ctx context.Context, sub *Subscription, reconnect bool) error {
	actor, err := h.loader.Actor(ctx, sub.tenantID, sub.actorID)
	if errors.Is(err, repository.ErrNotFound) {
		h.logger.Info("subscriber removed, closing view",
			zap.String("actor_id", sub.actorID), zap.String("kind", string(sub.kind)))
		sub.Close()
		return nil
	}
	if err != nil {
		return err
	}
	pred := visibility.ScopeFor(actor, sub.kind)
	if pred.IsNone() {
		h.logger.Info("subscriber lost scope, closing view",
			zap.String("actor_id", sub.actorID), zap.String("kind", string(sub.kind)))
		sub.Close()
		return nil
	}
	if !reconnect && pred.Equal(sub.Predicate()) {
		return nil
	}

	sub.loadMu.Lock()
	defer sub.loadMu.Unlock()
	docs, err := h.loader.Query(ctx, pred)
	if err != nil {
		return err
	}
	if reconnect {
		if sub.replace(pred, docs) {
			h.metrics.AddStaleViews(-1)
		}
		return nil
	}
	sub.rescope(pred, docs)
	return nil
}

// dispatch loads the changed document once and offers it to every
// matching view. An actor change also re-resolves the tenant's
// subscribers, since roles, permissions and reports shape predicates. A
// load failure other than not-found ends the connection so the views are
// resynced.
func (h *Hub) dispatch(ctx context.Context, change domain.Change) error {
	var targets []*Subscription
	for _, sub := range h.subscriptions(change.TenantID) {
		if sub.kind == change.Kind {
			targets = append(targets, sub)
		}
	}

	if len(targets) > 0 {
		var doc Document
		if change.Op != domain.ChangeRemoved {
			loaded, err := h.loader.Load(ctx, change.Kind, change.TenantID, change.ID)
			switch {
			case err == nil:
				doc = loaded
			case errors.Is(err, repository.ErrNotFound):
			default:
				return err
			}
		}
		for _, sub := range targets {
			sub.offer(change.ID, doc)
		}
	}

	if change.Kind == domain.KindSettings {
		return h.rescope(ctx, change.TenantID)
	}
	return nil
}

// subscriptions lists the registered views of tenantID, or of every tenant
// when tenantID is empty.
func (h *Hub) subscriptions(tenantID string) []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if tenantID == "" || sub.tenantID == tenantID {
			out = append(out, sub)
		}
	}
	return out
}

func (h *Hub) snapshotLocked() []*Subscription {
	out := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, sub)
	}
	return out
}
