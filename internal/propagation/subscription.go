package propagation

import (
	"sort"
	"sync"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// OpReset tells the consumer that individual updates were collapsed and the
// view should be re-read through Snapshot.
const OpReset domain.ChangeOp = "reset"

// Update is one change to a subscriber's view. Doc is nil for removals and
// resets.
type Update struct {
	Op      domain.ChangeOp
	Kind    domain.ResourceKind
	ID      string
	Version int64
	Doc     Document
}

// Subscription is a live, predicate-filtered view of one resource kind.
// Updates accumulate until drained; Notify fires whenever there is
// something new to drain or the stale flag flips.
type Subscription struct {
	id       int
	hub      *Hub
	actorID  string
	kind     domain.ResourceKind
	tenantID string

	// pred is replaced when the subscriber's role, permissions or reports
	// change; guarded by mu.
	pred visibility.Predicate

	// loadMu serializes full loads, initial and resync.
	loadMu sync.Mutex

	mu         sync.Mutex
	view       map[string]Document
	pending    []Update
	early      []Document
	earlyIDs   []string
	loading    bool
	stale      bool
	closed     bool
	maxPending int

	notify chan struct{}
	done   chan struct{}
}

func newSubscription(h *Hub, actorID string, pred visibility.Predicate, maxPending int) *Subscription {
	return &Subscription{
		hub:        h,
		actorID:    actorID,
		kind:       pred.Kind,
		tenantID:   pred.TenantID,
		pred:       pred,
		view:       make(map[string]Document),
		loading:    true,
		maxPending: maxPending,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Kind is the resource kind the view holds.
func (s *Subscription) Kind() domain.ResourceKind { return s.kind }

// Predicate is the visibility filter the view currently applies.
func (s *Subscription) Predicate() visibility.Predicate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pred
}

// Notify is signaled, coalesced, when Drain or Stale have news.
func (s *Subscription) Notify() <-chan struct{} { return s.notify }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Snapshot returns the current view ordered by id.
func (s *Subscription) Snapshot() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.view))
	for _, doc := range s.view {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID() < out[j].DocID() })
	return out
}

// Drain returns and clears the queued updates. A closed subscription
// always drains empty.
func (s *Subscription) Drain() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

// Stale reports whether the view may be missing changes because the feed
// is disconnected.
func (s *Subscription) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Close stops delivery and releases the view. It is safe to call more
// than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wasStale := s.stale
	s.view = nil
	s.pending = nil
	s.early, s.earlyIDs = nil, nil
	close(s.done)
	s.mu.Unlock()

	s.hub.remove(s.id, wasStale)
}

// offer applies one loaded change; doc is nil when the document is gone.
func (s *Subscription) offer(id string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.loading {
		s.earlyIDs = append(s.earlyIDs, id)
		s.early = append(s.early, doc)
		return
	}
	if s.applyLocked(id, doc) {
		s.signal()
	}
}

// load installs the initial query result and replays changes that arrived
// while it ran. Version guards drop replays older than the snapshot.
func (s *Subscription) load(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, doc := range docs {
		s.view[doc.DocID()] = doc
	}
	for i, id := range s.earlyIDs {
		s.applyLocked(id, s.early[i])
	}
	s.early, s.earlyIDs = nil, nil
	s.pending = nil
	s.loading = false
}

// replace swaps in a fresh query result after a reconnect, queuing the
// difference, and clears the stale flag. It reports whether the flag was
// set.
func (s *Subscription) replace(pred visibility.Predicate, docs []Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.reconcileLocked(pred, docs)
	wasStale := s.stale
	s.stale = false
	s.signal()
	return wasStale
}

// rescope swaps in a new predicate and the query result made with it.
// Documents the subscriber may no longer see are queued as removals.
func (s *Subscription) rescope(pred visibility.Predicate, docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.reconcileLocked(pred, docs)
	s.signal()
}

func (s *Subscription) reconcileLocked(pred visibility.Predicate, docs []Document) {
	s.pred = pred
	fresh := make(map[string]Document, len(docs))
	for _, doc := range docs {
		fresh[doc.DocID()] = doc
	}
	ids := make([]string, 0, len(s.view))
	for id := range s.view {
		if _, ok := fresh[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.applyLocked(id, nil)
	}
	for _, doc := range docs {
		s.applyLocked(doc.DocID(), doc)
	}
}

// markStale flags the view and reports whether the flag changed.
func (s *Subscription) markStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stale {
		return false
	}
	s.stale = true
	s.signal()
	return true
}

func (s *Subscription) applyLocked(id string, doc Document) bool {
	current, has := s.view[id]
	if doc == nil || !s.pred.Match(doc.Scope()) {
		if !has {
			return false
		}
		delete(s.view, id)
		s.push(Update{Op: domain.ChangeRemoved, Kind: s.kind, ID: id, Version: current.DocVersion()})
		return true
	}
	if has && doc.DocVersion() <= current.DocVersion() {
		return false
	}
	op := domain.ChangeAdded
	if has {
		op = domain.ChangeModified
	}
	s.view[id] = doc
	s.push(Update{Op: op, Kind: s.kind, ID: id, Version: doc.DocVersion(), Doc: doc})
	return true
}

func (s *Subscription) push(u Update) {
	if s.loading {
		return
	}
	if len(s.pending) > 0 && s.pending[0].Op == OpReset {
		return
	}
	if s.maxPending > 0 && len(s.pending) >= s.maxPending {
		s.pending = []Update{{Op: OpReset, Kind: s.kind}}
		return
	}
	s.pending = append(s.pending, u)
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
