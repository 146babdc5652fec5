// Package memory implements the repository contracts in process memory.
// It backs the test suites and single-node runs without POSTGRES_DSN.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/repository"
	apperrors "github.com/mouradajaa1-dot/fix-manager/pkg/util"
)

const listenerBuffer = 256

// Store holds every collection under one lock so multi-record writes commit
// atomically, mirroring a database transaction.
type Store struct {
	mu sync.Mutex

	actors    map[string]domain.Actor
	customers map[string]domain.Customer
	tickets   map[string]domain.Ticket
	ledger    map[string]domain.LedgerEntry
	history   map[string][]domain.TicketHistory
	sequences map[string]int64
	seqStart  int64

	listeners map[int]chan domain.Change
	nextID    int

	unavailable error
	now         func() time.Time
}

// New returns an empty store. seqStart offsets every sequence.
func New(seqStart int64) *Store {
	return &Store{
		actors:    make(map[string]domain.Actor),
		customers: make(map[string]domain.Customer),
		tickets:   make(map[string]domain.Ticket),
		ledger:    make(map[string]domain.LedgerEntry),
		history:   make(map[string][]domain.TicketHistory),
		sequences: make(map[string]int64),
		seqStart:  seqStart,
		listeners: make(map[int]chan domain.Change),
		now:       time.Now,
	}
}

// SetUnavailable makes every subsequent call fail as a store outage until
// called again with nil. Open feeds are closed.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
	if err != nil {
		s.dropListenersLocked()
	}
}

// DropListeners closes every open feed, as a lost connection would.
func (s *Store) DropListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropListenersLocked()
}

func (s *Store) Actors() repository.ActorRepository          { return actorStore{s} }
func (s *Store) Customers() repository.CustomerRepository    { return customerStore{s} }
func (s *Store) Tickets() repository.TicketRepository        { return ticketStore{s} }
func (s *Store) Ledger() repository.LedgerRepository         { return ledgerStore{s} }
func (s *Store) History() repository.TicketHistoryRepository { return historyStore{s} }
func (s *Store) Feed() repository.ChangeFeed                 { return feed{s} }
func (s *Store) Sequencer() repository.Sequencer             { return sequencer{s} }

// lock acquires the store and fails fast when it is marked unavailable or
// ctx is already done. On success the caller must unlock.
func (s *Store) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewUnavailable(err)
	}
	s.mu.Lock()
	if s.unavailable != nil {
		err := s.unavailable
		s.mu.Unlock()
		return apperrors.NewUnavailable(err)
	}
	return nil
}

func (s *Store) publishLocked(change domain.Change) {
	for id, ch := range s.listeners {
		select {
		case ch <- change:
		default:
			// A listener that cannot keep up has lost ordering; cut it off
			// so it resyncs.
			close(ch)
			delete(s.listeners, id)
		}
	}
}

func (s *Store) dropListenersLocked() {
	for id, ch := range s.listeners {
		close(ch)
		delete(s.listeners, id)
	}
}

type feed struct{ s *Store }

func (f feed) Listen(ctx context.Context) (<-chan domain.Change, error) {
	s := f.s
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	id := s.nextID
	s.nextID++
	ch := make(chan domain.Change, listenerBuffer)
	s.listeners[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.listeners[id]; ok {
			close(ch)
			delete(s.listeners, id)
		}
		s.mu.Unlock()
	}()
	return ch, nil
}

type sequencer struct{ s *Store }

func (q sequencer) Next(ctx context.Context, tenantID, name string) (int64, error) {
	s := q.s
	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	key := tenantID + "/" + name
	s.sequences[key]++
	return s.seqStart + s.sequences[key], nil
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func strPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
