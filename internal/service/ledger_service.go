package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/config"
	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/events"
	"github.com/mouradajaa1-dot/fix-manager/internal/ledger"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

// LedgerService appends manual movements and aggregates monthly totals.
type LedgerService struct {
	entries    repository.LedgerRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	location   *time.Location
	now        func() time.Time
}

// LedgerDependencies bundles repositories for the ledger service.
type LedgerDependencies struct {
	LedgerRepo repository.LedgerRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// EntryInput describes a manual ledger movement.
type EntryInput struct {
	Type        domain.EntryType
	Description string
	Amount      decimal.Decimal
	// Date defaults to today in the ledger timezone.
	Date time.Time
}

// LedgerQuery narrows a listing. Year and Month select one calendar month
// when both are set.
type LedgerQuery struct {
	Year      int
	Month     time.Month
	TicketRef string
	Limit     int
	Offset    int
}

// MonthlyAggregate is the totals of one calendar month.
type MonthlyAggregate struct {
	Year   int
	Month  time.Month
	Totals domain.LedgerTotals
}

// NewLedgerService constructs the service.
func NewLedgerService(cfg config.Config, deps LedgerDependencies) *LedgerService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Ledger.Location()
	if err != nil {
		loc = time.UTC
	}
	return &LedgerService{
		entries:    deps.LedgerRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		location:   loc,
		now:        time.Now,
	}
}

// Location is the timezone month boundaries are computed in.
func (s *LedgerService) Location() *time.Location {
	return s.location
}

// AppendManual records a movement for the actor's team.
func (s *LedgerService) AppendManual(ctx context.Context, actor *domain.Actor, input EntryInput) (*domain.LedgerEntry, error) {
	teamID := actor.TeamID()
	scope := domain.Scope{TenantID: actor.TenantID, TeamID: teamID, CreatedBy: actor.ID}
	if !visibility.CanWrite(actor, domain.KindLedger, scope) {
		return nil, apperrors.NewScopeForbidden("ledger", actor.ID)
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    actor.TenantID,
		TeamID:      teamID,
		Type:        input.Type,
		Description: input.Description,
		Amount:      input.Amount,
		Date:        ledger.DateOf(date, s.location),
		CreatedBy:   actor.ID,
	}
	if err := ledger.Validate(entry); err != nil {
		return nil, err
	}
	if err := s.entries.Append(ctx, entry); err != nil {
		return nil, storeError(err, "ledger entry", nil)
	}

	s.logger.Info("ledger entry appended",
		zap.String("entry_id", entry.ID),
		zap.String("team_id", entry.TeamID),
		zap.String("actor_id", actor.ID),
		zap.String("type", string(entry.Type)),
		zap.String("amount", entry.Amount.StringFixed(2)))
	publish(ctx, s.dispatcher, s.logger, ledgerEvent(*entry, actor))
	return entry, nil
}

// ListEntries returns visible entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, actor *domain.Actor, query LedgerQuery) ([]domain.LedgerEntry, error) {
	pred := visibility.ScopeFor(actor, domain.KindLedger)
	if pred.IsNone() {
		return []domain.LedgerEntry{}, nil
	}
	filter := repository.LedgerFilter{TicketRef: query.TicketRef, Limit: query.Limit, Offset: query.Offset}
	if query.Year != 0 && query.Month != 0 {
		if err := validMonth(query.Year, query.Month); err != nil {
			return nil, err
		}
		filter.From, filter.To = ledger.MonthRange(query.Year, query.Month, s.location)
	}
	return s.entries.List(ctx, pred, filter)
}

// Aggregate folds the visible entries of one month. Actors with no ledger
// scope get zero totals.
func (s *LedgerService) Aggregate(ctx context.Context, actor *domain.Actor, year int, month time.Month) (MonthlyAggregate, error) {
	result := MonthlyAggregate{
		Year:   year,
		Month:  month,
		Totals: domain.LedgerTotals{Income: decimal.Zero, Expense: decimal.Zero, Net: decimal.Zero},
	}
	if err := validMonth(year, month); err != nil {
		return result, err
	}
	pred := visibility.ScopeFor(actor, domain.KindLedger)
	if pred.IsNone() {
		return result, nil
	}
	from, to := ledger.MonthRange(year, month, s.location)
	entries, err := s.entries.List(ctx, pred, repository.LedgerFilter{From: from, To: to})
	if err != nil {
		return result, err
	}
	result.Totals = ledger.Fold(entries, pred, from, to)
	return result, nil
}

// CurrentMonth returns the year and month of now in the ledger timezone.
func (s *LedgerService) CurrentMonth() (int, time.Month) {
	now := s.now().In(s.location)
	return now.Year(), now.Month()
}

func validMonth(year int, month time.Month) error {
	if month < time.January || month > time.December {
		return apperrors.NewValidationError("month must be between 1 and 12", map[string]any{"month": int(month)})
	}
	if year < 1970 || year > 9999 {
		return apperrors.NewValidationError("year out of range", map[string]any{"year": year})
	}
	return nil
}
