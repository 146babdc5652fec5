package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

func entry(typ domain.EntryType, amount string, date time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		TenantID:    "t1",
		TeamID:      domain.RootActorID,
		Type:        typ,
		Description: "movement",
		Amount:      decimal.RequireFromString(amount),
		Date:        date,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFoldIsOrderIndependent(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(domain.EntryIncome, "120.00", day(2026, 3, 1)),
		entry(domain.EntryIncome, "0.10", day(2026, 3, 9)),
		entry(domain.EntryIncome, "0.20", day(2026, 3, 31)),
		entry(domain.EntryExpense, "45.35", day(2026, 3, 15)),
		entry(domain.EntryExpense, "300", day(2026, 3, 20)),
		entry(domain.EntryIncome, "999", day(2026, 4, 1)),
		entry(domain.EntryExpense, "999", day(2026, 2, 28)),
	}
	pred := visibility.All(domain.KindLedger, "t1")
	from, to := MonthRange(2026, time.March, time.UTC)
	want := Fold(entries, pred, from, to)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.LedgerEntry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Fold(shuffled, pred, from, to)
		if !got.Income.Equal(want.Income) || !got.Expense.Equal(want.Expense) || !got.Net.Equal(want.Net) {
			t.Fatalf("shuffle %d: got %+v, want %+v", i, got, want)
		}
	}

	if !want.Income.Equal(decimal.RequireFromString("120.30")) {
		t.Fatalf("income = %s", want.Income)
	}
	if !want.Expense.Equal(decimal.RequireFromString("345.35")) {
		t.Fatalf("expense = %s", want.Expense)
	}
	if !want.Net.Equal(decimal.RequireFromString("-225.05")) {
		t.Fatalf("net = %s, negative totals must not be floored", want.Net)
	}
}

func TestFoldAppliesPredicate(t *testing.T) {
	mine := entry(domain.EntryIncome, "10", day(2026, 5, 2))
	mine.TeamID = "a"
	theirs := entry(domain.EntryIncome, "20", day(2026, 5, 2))
	theirs.TeamID = "a2"
	pred := visibility.Predicate{Kind: domain.KindLedger, TenantID: "t1", Mode: visibility.MatchFilter, TeamIDs: []string{"a"}}
	from, to := MonthRange(2026, time.May, time.UTC)
	got := Fold([]domain.LedgerEntry{mine, theirs}, pred, from, to)
	if !got.Income.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("income = %s, want 10", got.Income)
	}

	none := Fold([]domain.LedgerEntry{mine, theirs}, visibility.None(domain.KindLedger, "t1"), from, to)
	if !none.Income.IsZero() || !none.Net.IsZero() {
		t.Fatalf("none predicate produced %+v", none)
	}
}

func TestMonthRangeRespectsLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	from, to := MonthRange(2026, time.December, loc)
	if from.Month() != time.December || to.Year() != 2027 || to.Month() != time.January {
		t.Fatalf("unexpected range %s - %s", from, to)
	}
	late := time.Date(2026, 11, 30, 23, 30, 0, 0, time.UTC)
	if got := DateOf(late, loc); got.Month() != time.December || got.Day() != 1 {
		t.Fatalf("DateOf = %s, want Dec 1 in CET", got)
	}
}

func TestValidate(t *testing.T) {
	ok := entry(domain.EntryExpense, "12.5", day(2026, 1, 1))
	if err := Validate(&ok); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}
	cases := map[string]func(e *domain.LedgerEntry){
		"negative amount": func(e *domain.LedgerEntry) { e.Amount = decimal.RequireFromString("-1") },
		"zero amount":     func(e *domain.LedgerEntry) { e.Amount = decimal.Zero },
		"unknown type":    func(e *domain.LedgerEntry) { e.Type = "Refund" },
		"no description":  func(e *domain.LedgerEntry) { e.Description = "  " },
		"no date":         func(e *domain.LedgerEntry) { e.Date = time.Time{} },
	}
	for name, mutate := range cases {
		e := ok
		mutate(&e)
		if err := Validate(&e); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("%s: err = %v, want validation error", name, err)
		}
	}
}

func TestFoldComparesCalendarDays(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// Stored dates come back as UTC midnight of the calendar day.
	first := entry(domain.EntryIncome, "10", day(2026, 7, 1))
	last := entry(domain.EntryIncome, "5", day(2026, 7, 31))
	next := entry(domain.EntryIncome, "99", day(2026, 8, 1))

	from, to := MonthRange(2026, time.July, loc)
	got := Fold([]domain.LedgerEntry{first, last, next}, visibility.All(domain.KindLedger, "t1"), from, to)
	if !got.Income.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("income = %s, want 15", got.Income)
	}
}
