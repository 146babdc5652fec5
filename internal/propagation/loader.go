package propagation

import (
	"context"
	"fmt"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	"github.com/mouradajaa1-dot/fix-manager/internal/visibility"
)

// Document is a stored record a view can hold.
type Document interface {
	DocID() string
	DocVersion() int64
	Scope() domain.Scope
}

// Loader reads the current state of documents. Load and Actor return
// repository.ErrNotFound for a record that no longer exists.
type Loader interface {
	Load(ctx context.Context, kind domain.ResourceKind, tenantID, id string) (Document, error)
	Query(ctx context.Context, pred visibility.Predicate) ([]Document, error)
	// Actor resolves a subscriber afresh, reports included.
	Actor(ctx context.Context, tenantID, id string) (*domain.Actor, error)
}

// RepositoryLoader reads documents through the repositories.
type RepositoryLoader struct {
	Actors    repository.ActorRepository
	Customers repository.CustomerRepository
	Tickets   repository.TicketRepository
	Ledger    repository.LedgerRepository
}

func (l RepositoryLoader) Load(ctx context.Context, kind domain.ResourceKind, tenantID, id string) (Document, error) {
	switch kind {
	case domain.KindTickets:
		return document(l.Tickets.GetByID(ctx, tenantID, id))
	case domain.KindCustomers:
		return document(l.Customers.GetByID(ctx, tenantID, id))
	case domain.KindLedger:
		return document(l.Ledger.GetByID(ctx, tenantID, id))
	case domain.KindSettings:
		return document(l.Actors.GetByID(ctx, tenantID, id))
	}
	return nil, fmt.Errorf("unknown resource kind %q", kind)
}

func (l RepositoryLoader) Query(ctx context.Context, pred visibility.Predicate) ([]Document, error) {
	switch pred.Kind {
	case domain.KindTickets:
		rows, err := l.Tickets.List(ctx, pred, repository.TicketFilter{})
		return documents(rows, err)
	case domain.KindCustomers:
		rows, err := l.Customers.List(ctx, pred, repository.CustomerFilter{})
		return documents(rows, err)
	case domain.KindLedger:
		rows, err := l.Ledger.List(ctx, pred, repository.LedgerFilter{})
		return documents(rows, err)
	case domain.KindSettings:
		rows, err := l.Actors.List(ctx, pred)
		return documents(rows, err)
	}
	return nil, fmt.Errorf("unknown resource kind %q", pred.Kind)
}

func (l RepositoryLoader) Actor(ctx context.Context, tenantID, id string) (*domain.Actor, error) {
	actor, err := l.Actors.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	reports, err := l.Actors.ListReports(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	actor.Reports = reports
	return actor, nil
}

func document[P Document](doc P, err error) (Document, error) {
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// documents adapts a slice of records whose pointer type is a Document.
func documents[T any, P interface {
	*T
	Document
}](rows []T, err error) ([]Document, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for i := range rows {
		out = append(out, P(&rows[i]))
	}
	return out, nil
}
