package visibility

import (
	"testing"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
)

const tenant = "t1"

func ptr(s string) *string { return &s }

type org struct {
	owner, adminA, adminB, techT, techT2 *domain.Actor
}

func newOrg() org {
	owner := &domain.Actor{ID: domain.RootActorID, TenantID: tenant, Username: "owner", Role: domain.RoleOwner,
		Permissions: domain.DefaultPermissions(domain.RoleOwner), Reports: []string{"a", "a2"}}
	adminA := &domain.Actor{ID: "a", TenantID: tenant, Username: "anna", Role: domain.RoleAdmin, CreatedBy: ptr(owner.ID),
		Permissions: domain.DefaultPermissions(domain.RoleAdmin), Reports: []string{"t"}}
	adminB := &domain.Actor{ID: "a2", TenantID: tenant, Username: "bruno", Role: domain.RoleAdmin, CreatedBy: ptr(owner.ID),
		Permissions: domain.DefaultPermissions(domain.RoleAdmin), Reports: []string{"t2"}}
	techT := &domain.Actor{ID: "t", TenantID: tenant, Username: "tom", Role: domain.RoleTechnician, CreatedBy: ptr("a"),
		Permissions: domain.DefaultPermissions(domain.RoleTechnician)}
	techT2 := &domain.Actor{ID: "t2", TenantID: tenant, Username: "tina", Role: domain.RoleTechnician, CreatedBy: ptr("a2"),
		Permissions: domain.DefaultPermissions(domain.RoleTechnician)}
	return org{owner: owner, adminA: adminA, adminB: adminB, techT: techT, techT2: techT2}
}

func ticketBy(creator *domain.Actor) *domain.Ticket {
	return &domain.Ticket{
		ID:         "ticket-" + creator.ID,
		TenantID:   tenant,
		CreatedBy:  creator.ID,
		TeamID:     creator.TeamID(),
		AssignedTo: creator.Username,
	}
}

func TestScopeForTicketScenario(t *testing.T) {
	o := newOrg()
	mine := ticketBy(o.techT)
	other := ticketBy(o.techT2)

	cases := []struct {
		name   string
		actor  *domain.Actor
		ticket *domain.Ticket
		want   bool
	}{
		{"technician sees own assignment", o.techT, mine, true},
		{"admin sees report's ticket", o.adminA, mine, true},
		{"owner sees report's ticket", o.owner, mine, true},
		{"admin does not see other team", o.adminA, other, false},
		{"technician does not see other technician", o.techT, other, false},
		{"other admin sees its own report", o.adminB, other, true},
		{"owner sees other team", o.owner, other, true},
	}
	for _, tc := range cases {
		got := ScopeFor(tc.actor, domain.KindTickets).Match(tc.ticket.Scope())
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestScopeForIsPure(t *testing.T) {
	o := newOrg()
	kinds := []domain.ResourceKind{domain.KindTickets, domain.KindCustomers, domain.KindLedger, domain.KindSettings}
	for _, actor := range []*domain.Actor{o.owner, o.adminA, o.adminB, o.techT, o.techT2} {
		for _, kind := range kinds {
			first := ScopeFor(actor, kind)
			second := ScopeFor(actor, kind)
			if !first.Equal(second) {
				t.Fatalf("ScopeFor(%s, %s) not deterministic: %+v vs %+v", actor.ID, kind, first, second)
			}
		}
	}
}

func TestScopeForAdminReportOrderDoesNotMatter(t *testing.T) {
	a := &domain.Actor{ID: "a", TenantID: tenant, Role: domain.RoleAdmin, Reports: []string{"t3", "t1", "t2"}}
	b := &domain.Actor{ID: "a", TenantID: tenant, Role: domain.RoleAdmin, Reports: []string{"t1", "t2", "t3", "t1"}}
	if !ScopeFor(a, domain.KindTickets).Equal(ScopeFor(b, domain.KindTickets)) {
		t.Fatal("predicates differ for the same report set")
	}
}

func TestTechnicianDeniedLedgerAndSettings(t *testing.T) {
	o := newOrg()
	entry := &domain.LedgerEntry{TenantID: tenant, TeamID: "a", CreatedBy: "t"}
	for _, kind := range []domain.ResourceKind{domain.KindLedger, domain.KindSettings} {
		p := ScopeFor(o.techT, kind)
		if !p.IsNone() {
			t.Fatalf("technician %s predicate = %s, want none", kind, p.Mode)
		}
		if p.Match(entry.Scope()) {
			t.Fatalf("technician matched a %s record", kind)
		}
	}
}

func TestTechnicianCustomersFollowParentTeam(t *testing.T) {
	o := newOrg()
	own := &domain.Customer{TenantID: tenant, TeamID: "a"}
	foreign := &domain.Customer{TenantID: tenant, TeamID: "a2"}
	p := ScopeFor(o.techT, domain.KindCustomers)
	if !p.Match(own.Scope()) {
		t.Fatal("technician should see its parent team's customers")
	}
	if p.Match(foreign.Scope()) {
		t.Fatal("technician should not see another team's customers")
	}

	restricted := *o.techT
	restricted.Permissions = []domain.Permission{domain.PermissionViewRepairs}
	if !ScopeFor(&restricted, domain.KindCustomers).IsNone() {
		t.Fatal("technician without view_customers should get an empty scope")
	}
}

func TestScopeRecomputedAfterRoleChange(t *testing.T) {
	o := newOrg()
	promoted := *o.techT
	other := ticketBy(o.techT2)
	if ScopeFor(&promoted, domain.KindTickets).Match(other.Scope()) {
		t.Fatal("technician unexpectedly sees foreign ticket")
	}
	promoted.Role = domain.RoleOwner
	if !ScopeFor(&promoted, domain.KindTickets).Match(other.Scope()) {
		t.Fatal("owner role should see every ticket")
	}
}

func TestWriteScopeRequiresEditPermission(t *testing.T) {
	o := newOrg()
	viewer := *o.techT
	viewer.Permissions = []domain.Permission{domain.PermissionViewRepairs}
	mine := ticketBy(o.techT)
	if !CanSee(&viewer, domain.KindTickets, mine.Scope()) {
		t.Fatal("viewer should see its ticket")
	}
	if CanWrite(&viewer, domain.KindTickets, mine.Scope()) {
		t.Fatal("viewer without edit_repairs should not write")
	}
	if !CanWrite(o.techT, domain.KindTickets, mine.Scope()) {
		t.Fatal("technician with edit_repairs should write its ticket")
	}
}

func TestPredicateNeverCrossesTenants(t *testing.T) {
	o := newOrg()
	foreign := &domain.Ticket{TenantID: "t2", TeamID: o.owner.ID}
	if ScopeFor(o.owner, domain.KindTickets).Match(foreign.Scope()) {
		t.Fatal("owner matched a record of another tenant")
	}
	if ScopeFor(nil, domain.KindTickets).Match(foreign.Scope()) {
		t.Fatal("nil actor matched a record")
	}
}
