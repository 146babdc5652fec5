package propagation

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/observability"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository/memory"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

const tenant = "t1"

func loaderFor(store *memory.Store) RepositoryLoader {
	return RepositoryLoader{
		Actors:    store.Actors(),
		Customers: store.Customers(),
		Tickets:   store.Tickets(),
		Ledger:    store.Ledger(),
	}
}

// gatedFeed holds reconnects until the gate is opened.
type gatedFeed struct {
	inner repository.ChangeFeed
	gate  chan struct{}
}

func (f *gatedFeed) Listen(ctx context.Context) (<-chan domain.Change, error) {
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.inner.Listen(ctx)
}

func openGate() chan struct{} {
	gate := make(chan struct{})
	close(gate)
	return gate
}

func ownerActor() *domain.Actor {
	return &domain.Actor{ID: domain.RootActorID, TenantID: tenant, Username: "owner", Role: domain.RoleOwner,
		Permissions: domain.DefaultPermissions(domain.RoleOwner)}
}

func techActor(username string) *domain.Actor {
	root := domain.RootActorID
	return &domain.Actor{ID: username, TenantID: tenant, Username: username, Role: domain.RoleTechnician,
		CreatedBy: &root, Permissions: domain.DefaultPermissions(domain.RoleTechnician)}
}

func addTicket(t *testing.T, store *memory.Store, n int, assignee string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ID:         "tk-" + strconv.Itoa(n),
		TenantID:   tenant,
		ShortID:    "R" + strconv.Itoa(1000+n),
		CustomerID: "c1",
		Status:     domain.TicketStatusQueued,
		AssignedTo: assignee,
		CreatedBy:  domain.RootActorID,
		TeamID:     domain.RootActorID,
	}
	if err := store.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type harness struct {
	store   *memory.Store
	hub     *Hub
	feed    *gatedFeed
	metrics *observability.Metrics
	cancel  context.CancelFunc
	done    chan error
}

func startHub(t *testing.T, maxPending int) *harness {
	t.Helper()
	store := memory.New(1000)
	feed := &gatedFeed{inner: store.Feed(), gate: openGate()}
	metrics := observability.NewMetrics()
	hub := NewHub(feed, loaderFor(store), Options{
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		MaxPending: maxPending,
		Metrics:    metrics,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{store: store, hub: hub, feed: feed, metrics: metrics, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- hub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	waitFor(t, "feed attach", hub.Connected)
	for _, actor := range []*domain.Actor{ownerActor(), techActor("tom")} {
		if err := store.Actors().Create(context.Background(), actor); err != nil {
			t.Fatalf("create actor: %v", err)
		}
	}
	return h
}

func drainUntil(t *testing.T, sub *Subscription, n int) []Update {
	t.Helper()
	var got []Update
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case <-sub.Notify():
			got = append(got, sub.Drain()...)
		case <-deadline:
			t.Fatalf("got %d updates, want %d", len(got), n)
		}
	}
	return got
}

func TestSubscriptionsFollowPredicate(t *testing.T) {
	h := startHub(t, 0)
	ctx := context.Background()
	addTicket(t, h.store, 1, "tina")

	ownerSub, err := h.hub.Subscribe(ctx, ownerActor(), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer ownerSub.Close()
	techSub, err := h.hub.Subscribe(ctx, techActor("tom"), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer techSub.Close()

	if len(ownerSub.Snapshot()) != 1 || len(techSub.Snapshot()) != 0 {
		t.Fatalf("initial snapshots = %d/%d, want 1/0", len(ownerSub.Snapshot()), len(techSub.Snapshot()))
	}

	addTicket(t, h.store, 2, "tom")
	addTicket(t, h.store, 3, "tina")

	got := drainUntil(t, ownerSub, 2)
	if got[0].ID != "tk-2" || got[1].ID != "tk-3" || got[0].Op != domain.ChangeAdded {
		t.Fatalf("owner updates = %+v", got)
	}
	techGot := drainUntil(t, techSub, 1)
	if len(techGot) != 1 || techGot[0].ID != "tk-2" {
		t.Fatalf("technician updates = %+v", techGot)
	}

	// Reassigning away from tom removes it from his view.
	ticket, err := h.store.Tickets().GetByID(ctx, tenant, "tk-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ticket.AssignedTo = "tina"
	if err := h.store.Tickets().UpdateFields(ctx, ticket); err != nil {
		t.Fatalf("update: %v", err)
	}
	removed := drainUntil(t, techSub, 1)
	if removed[0].Op != domain.ChangeRemoved || removed[0].ID != "tk-2" {
		t.Fatalf("technician update = %+v, want removal", removed[0])
	}
	modified := drainUntil(t, ownerSub, 1)
	if modified[0].Op != domain.ChangeModified || modified[0].Version != 2 {
		t.Fatalf("owner update = %+v, want modified v2", modified[0])
	}
}

func TestLedgerSubscriptionForTechnicianIsEmpty(t *testing.T) {
	h := startHub(t, 0)
	sub, err := h.hub.Subscribe(context.Background(), techActor("tom"), domain.KindLedger)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("empty-scope subscription should be done")
	}
	if len(sub.Snapshot()) != 0 || sub.Drain() != nil {
		t.Fatalf("technician received ledger data")
	}
}

func TestCancelledSubscriptionReceivesNothing(t *testing.T) {
	h := startHub(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.hub.Subscribe(ctx, ownerActor(), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	addTicket(t, h.store, 1, "")
	drainUntil(t, sub, 1)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("subscription not closed by cancel")
	}
	addTicket(t, h.store, 2, "")
	time.Sleep(20 * time.Millisecond)
	if got := sub.Drain(); got != nil {
		t.Fatalf("drained %d updates after cancel", len(got))
	}
}

func TestFeedLossMarksStaleAndResyncs(t *testing.T) {
	h := startHub(t, 0)
	ctx := context.Background()
	sub, err := h.hub.Subscribe(ctx, ownerActor(), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	addTicket(t, h.store, 1, "")
	drainUntil(t, sub, 1)

	h.feed.gate = make(chan struct{})
	h.store.DropListeners()
	waitFor(t, "stale flag", sub.Stale)
	if h.metrics.Snapshot().StaleViews != 1 {
		t.Fatalf("stale views = %d, want 1", h.metrics.Snapshot().StaleViews)
	}

	// Written while the feed is down, so only a resync can surface it.
	addTicket(t, h.store, 2, "")
	close(h.feed.gate)

	waitFor(t, "resync", func() bool { return !sub.Stale() })
	got := sub.Drain()
	if len(got) != 1 || got[0].ID != "tk-2" || got[0].Op != domain.ChangeAdded {
		t.Fatalf("resync updates = %+v", got)
	}
	if len(sub.Snapshot()) != 2 {
		t.Fatalf("snapshot = %d docs, want 2", len(sub.Snapshot()))
	}
	if h.metrics.Snapshot().StaleViews != 0 {
		t.Fatalf("stale views = %d after resync", h.metrics.Snapshot().StaleViews)
	}
}

func TestOverflowCollapsesToReset(t *testing.T) {
	h := startHub(t, 2)
	sub, err := h.hub.Subscribe(context.Background(), ownerActor(), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	for i := 1; i <= 5; i++ {
		addTicket(t, h.store, i, "")
	}
	waitFor(t, "all tickets", func() bool { return len(sub.Snapshot()) == 5 })
	got := sub.Drain()
	if len(got) != 1 || got[0].Op != OpReset {
		t.Fatalf("updates = %+v, want a single reset", got)
	}
}

func adminActor(username string) *domain.Actor {
	root := domain.RootActorID
	return &domain.Actor{ID: username, TenantID: tenant, Username: username, Role: domain.RoleAdmin,
		CreatedBy: &root, Permissions: domain.DefaultPermissions(domain.RoleAdmin)}
}

func addTeamTicket(t *testing.T, store *memory.Store, n int, team, assignee string) {
	t.Helper()
	ticket := &domain.Ticket{
		ID:         "tk-" + strconv.Itoa(n),
		TenantID:   tenant,
		ShortID:    "R" + strconv.Itoa(1000+n),
		CustomerID: "c1",
		Status:     domain.TicketStatusQueued,
		AssignedTo: assignee,
		CreatedBy:  team,
		TeamID:     team,
	}
	if err := store.Tickets().Create(context.Background(), ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
}

func TestSubscriptionFollowsDemotion(t *testing.T) {
	h := startHub(t, 0)
	ctx := context.Background()
	adm := adminActor("adm")
	if err := h.store.Actors().Create(ctx, adm); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	addTeamTicket(t, h.store, 1, "adm", "other")

	sub, err := h.hub.Subscribe(ctx, adm, domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if len(sub.Snapshot()) != 1 {
		t.Fatalf("admin snapshot = %d docs, want 1", len(sub.Snapshot()))
	}

	adm.Role = domain.RoleTechnician
	adm.Permissions = domain.DefaultPermissions(domain.RoleTechnician)
	if err := h.store.Actors().Update(ctx, adm); err != nil {
		t.Fatalf("demote: %v", err)
	}

	removed := drainUntil(t, sub, 1)
	if removed[0].Op != domain.ChangeRemoved || removed[0].ID != "tk-1" {
		t.Fatalf("update after demotion = %+v, want removal of tk-1", removed[0])
	}
	if got := sub.Predicate(); got.Mode != visibility.MatchFilter || got.AssignedTo != "adm" {
		t.Fatalf("predicate after demotion = %+v", got)
	}

	// Another team ticket assigned elsewhere must not reach the demoted view.
	addTeamTicket(t, h.store, 2, "adm", "other")
	addTeamTicket(t, h.store, 3, "adm", "adm")
	got := drainUntil(t, sub, 1)
	for _, u := range got {
		if u.ID == "tk-2" {
			t.Fatalf("demoted subscriber received tk-2")
		}
	}
	if got[0].ID != "tk-3" || got[0].Op != domain.ChangeAdded {
		t.Fatalf("update = %+v, want tk-3 added", got[0])
	}
}

func TestSubscriptionClosesWhenActorDeleted(t *testing.T) {
	h := startHub(t, 0)
	ctx := context.Background()
	sub, err := h.hub.Subscribe(ctx, techActor("tom"), domain.KindTickets)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := h.store.Actors().Delete(ctx, tenant, "tom"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("subscription of a deleted actor stayed open")
	}
	addTicket(t, h.store, 1, "tom")
	time.Sleep(20 * time.Millisecond)
	if got := sub.Drain(); got != nil {
		t.Fatalf("drained %d updates after deletion", len(got))
	}
}
