package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository/memory"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const tenant = "shop"

func TestResolveMatchesByPhoneFirst(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 10, nil)
	ctx := context.Background()

	first, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Alice", Phone: "555-1", Email: "a@x"})
	if err != nil || !first.Created {
		t.Fatalf("first resolve = %+v, %v", first, err)
	}

	second, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Alicia", Phone: " 555-1 "})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.Created || second.Customer.ID != first.Customer.ID {
		t.Fatalf("expected existing customer, got %+v", second)
	}
	if second.Customer.Name != "Alice" {
		t.Fatalf("name overwritten to %q", second.Customer.Name)
	}

	count, _ := store.Customers().Count(ctx, visibility.All(domain.KindCustomers, tenant))
	if count != 1 {
		t.Fatalf("customer count = %d, want 1", count)
	}
}

func TestResolveIsIdempotentOnPhone(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 0, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Bob", Phone: "777"})
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		ids = append(ids, res.Customer.ID)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("ids diverged: %v", ids)
		}
	}
}

func TestPhoneBeatsEmail(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 0, nil)
	ctx := context.Background()

	byPhone, _ := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Phone Holder", Phone: "111"})
	byEmail, _ := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Mail Holder", Email: "mail@x.io"})

	got, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Either", Phone: "111", Email: "MAIL@x.io "})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Customer.ID != byPhone.Customer.ID {
		t.Fatalf("resolved %s, want phone match %s (email match was %s)", got.Customer.ID, byPhone.Customer.ID, byEmail.Customer.ID)
	}

	got, _ = m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "Either", Email: "MAIL@X.IO"})
	if got.Customer.ID != byEmail.Customer.ID {
		t.Fatalf("email match is not case-insensitive")
	}
}

func TestMatchingIsScopedToTeam(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 0, nil)
	ctx := context.Background()

	a, _ := m.Resolve(ctx, tenant, "a", "a", Contact{Name: "Carol", Phone: "222"})
	b, _ := m.Resolve(ctx, tenant, "b", "b", Contact{Name: "Carol", Phone: "222"})
	if a.Customer.ID == b.Customer.ID {
		t.Fatal("teams share a customer record")
	}
}

func TestCapacityExceeded(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 2, nil)
	ctx := context.Background()

	for _, phone := range []string{"1", "2"} {
		if _, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "C" + phone, Phone: phone}); err != nil {
			t.Fatalf("resolve %s: %v", phone, err)
		}
	}
	_, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "C3", Phone: "3"})
	if !errors.Is(err, apperrors.ErrCapacity) {
		t.Fatalf("err = %v, want capacity error", err)
	}

	// An existing identity still resolves at the cap.
	if _, err := m.Resolve(ctx, tenant, "owner", "owner", Contact{Name: "C1", Phone: "1"}); err != nil {
		t.Fatalf("existing customer at cap: %v", err)
	}
}

func TestNameRequiredToCreate(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 0, nil)
	_, err := m.Resolve(context.Background(), tenant, "owner", "owner", Contact{Phone: "9"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestAliceAliciaScenario(t *testing.T) {
	store := memory.New(0)
	m := NewMatcher(store.Customers(), 0, nil)
	ctx := context.Background()

	first, err := m.Resolve(ctx, tenant, "5", "5", Contact{Phone: "333-1", Name: "Alice"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := m.Resolve(ctx, tenant, "5", "5", Contact{Phone: "333-1", Name: "Alicia"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Customer.ID != second.Customer.ID {
		t.Fatalf("ids differ: %s vs %s", first.Customer.ID, second.Customer.ID)
	}
	stored, _ := store.Customers().GetByID(ctx, tenant, first.Customer.ID)
	if stored.Name != "Alice" {
		t.Fatalf("stored name = %q, want Alice", stored.Name)
	}
}
