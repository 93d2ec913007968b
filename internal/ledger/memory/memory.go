// Package memory is an in-process ledger used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Store keeps account sheets in a map.
type Store struct {
	mu       sync.RWMutex
	marker   string
	order    []string
	accounts map[string][]domain.Transaction
}

// New creates an empty store using marker to identify account sheets.
func New(marker string) *Store {
	return &Store{
		marker:   marker,
		accounts: make(map[string][]domain.Transaction),
	}
}

// Seed creates title (if needed) and appends txs. It is meant for tests.
func (s *Store) Seed(title string, txs ...domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[title]; !ok {
		s.order = append(s.order, title)
	}
	s.accounts[title] = append(s.accounts[title], txs...)
}

// ListAccounts returns the account sheets in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.AccountSheet{}
	for i, title := range s.order {
		if domain.IsAccountTitle(title, s.marker) {
			out = append(out, domain.NewAccountSheet(fmt.Sprint(i), title, s.marker))
		}
	}
	return out, nil
}

// ReadTransactions returns a copy of the rows of title.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.accounts[title]
	if !ok {
		return nil, fmt.Errorf("ReadTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}
	return append([]domain.Transaction{}, rows...), nil
}

// AppendTransactions appends txs to title.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[title]; !ok {
		return fmt.Errorf("AppendTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}
	s.accounts[title] = append(s.accounts[title], txs...)
	return nil
}

// CreateAccount adds an empty sheet for name.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[title]; ok {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %s already exists", title)
	}
	s.order = append(s.order, title)
	s.accounts[title] = []domain.Transaction{}
	return domain.NewAccountSheet(fmt.Sprint(len(s.order)-1), title, s.marker), nil
}

// Titles returns every sheet title, sorted. Used by tests.
func (s *Store) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string{}, s.order...)
	sort.Strings(out)
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
