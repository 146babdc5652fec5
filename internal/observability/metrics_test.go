package observability

import (
	"testing"
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

func TestSnapshotCopiesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordTransition(domain.TicketStatusReadyForPickup, domain.TicketStatusDelivered)
	m.RecordConflict()
	m.AddStaleViews(2)
	m.AddStaleViews(-1)

	snap := m.Snapshot()
	if snap.Requests["/tickets|GET|200"] != 2 {
		t.Fatalf("requests = %v", snap.Requests)
	}
	if snap.Transitions["ReadyForPickup->Delivered"] != 1 || snap.Conflicts != 1 || snap.StaleViews != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	snap.Requests["/tickets|GET|200"] = 99
	if m.Snapshot().Requests["/tickets|GET|200"] != 2 {
		t.Fatal("snapshot aliases internal state")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordConflict()
	if got := m.Snapshot(); got.Conflicts != 0 {
		t.Fatalf("nil snapshot = %+v", got)
	}
}
