// Package csvdir stores the ledger as a directory of CSV files, one file per
// account named after the account title.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

const extension = ".csv"

// Store is a ledger rooted at a directory.
type Store struct {
	mu     sync.Mutex
	dir    string
	marker string
}

// Open creates dir if needed and returns a store rooted there.
func Open(dir, marker string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvdir.Open: %w", err)
	}
	return &Store{dir: dir, marker: marker}, nil
}

func (s *Store) path(title string) string {
	return filepath.Join(s.dir, title+extension)
}

// ListAccounts returns one account per marker-prefixed CSV file, sorted by
// title.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	out := []domain.AccountSheet{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), extension) {
			continue
		}
		title := strings.TrimSuffix(e.Name(), extension)
		if domain.IsAccountTitle(title, s.marker) {
			out = append(out, domain.NewAccountSheet(e.Name(), title, s.marker))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// ReadTransactions parses the account file. Rows with nothing beyond the
// first column are skipped.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path(title))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ReadTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var rows []*domain.Transaction
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil && !errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return nil, fmt.Errorf("ReadTransactions: parse %s: %w", title, err)
	}

	txs := []domain.Transaction{}
	for _, r := range rows {
		if r.Description == "" && r.Credit == "" && r.Debit == "" {
			continue
		}
		txs = append(txs, *r)
	}
	return txs, nil
}

// AppendTransactions appends rows to the account file.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path(title), os.O_WRONLY|os.O_APPEND, 0)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("AppendTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalWithoutHeaders(&txs, file); err != nil {
		return fmt.Errorf("AppendTransactions: write %s: %w", title, err)
	}
	return nil
}

// CreateAccount writes a new file holding only the header row.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)
	if strings.ContainsAny(title, `/\`) {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: invalid account name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path(title), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(domain.LedgerColumns); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: write header: %w", err)
	}
	return domain.NewAccountSheet(title+extension, title, s.marker), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
