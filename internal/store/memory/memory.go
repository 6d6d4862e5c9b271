// Package memory is an in-process implementation of store.Ledger. A unit
// of work holds the store-wide write lock from start to finish, so units
// of work are serializable. Writes are recorded in an undo log and
// reverted when the unit of work fails.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

var errReadOnly = errors.New("write attempted in read-only view")

type holdingKey struct {
	accountID string
	symbol    string
}

// Store is a thread-safe in-memory ledger.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	stocks   map[string]*domain.Stock
	holdings map[holdingKey]*domain.Holding
	offers   map[string]*domain.SellOffer
	books    map[string]*sellBook       // symbol → sell book
	trades   map[string][]*domain.Trade // account_id → trades (chronological)
	orders   map[string]*domain.PendingOrder
}

var _ store.Ledger = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		stocks:   make(map[string]*domain.Stock),
		holdings: make(map[holdingKey]*domain.Holding),
		offers:   make(map[string]*domain.SellOffer),
		books:    make(map[string]*sellBook),
		trades:   make(map[string][]*domain.Trade),
		orders:   make(map[string]*domain.PendingOrder),
	}
}

// WithTx runs fn under the store-wide write lock. If fn returns an error
// or panics, every write it made is undone.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// View runs fn under the read lock. Writes fail with an error.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{s: s, readOnly: true})
}

// book returns the sell book for symbol, creating one if it doesn't
// already exist. Callers hold the write lock.
func (s *Store) book(symbol string) *sellBook {
	b, ok := s.books[symbol]
	if !ok {
		b = newSellBook()
		s.books[symbol] = b
	}
	return b
}

// tx is a unit of work. Locking is store-wide, so the row-lock methods of
// store.Tx need no extra work here.
type tx struct {
	s        *Store
	readOnly bool
	undo     []func()
}

var _ store.Tx = (*tx)(nil)

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
