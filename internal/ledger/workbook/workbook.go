// Package workbook stores the ledger in a local .xlsx file, one worksheet
// per account.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Store is a ledger backed by an Excel workbook. Every mutation is saved to
// disk before returning.
type Store struct {
	mu     sync.Mutex
	path   string
	marker string
	file   *excelize.File
}

// Open loads path, creating an empty workbook when it does not exist.
func Open(path, marker string) (*Store, error) {
	var (
		f   *excelize.File
		err error
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		f = excelize.NewFile()
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("workbook.Open: %s: %w", path, err)
		}
	}
	return &Store{path: path, marker: marker, file: f}, nil
}

// ListAccounts returns the worksheets whose name carries the marker.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.AccountSheet{}
	for _, name := range s.file.GetSheetList() {
		if !domain.IsAccountTitle(name, s.marker) {
			continue
		}
		idx, err := s.file.GetSheetIndex(name)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %s: %w", name, err)
		}
		out = append(out, domain.NewAccountSheet(strconv.Itoa(idx), name, s.marker))
	}
	return out, nil
}

// ReadTransactions returns the data rows of title.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(title)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}

	txs := []domain.Transaction{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if tx, ok := domain.TransactionFromRow(row); ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// AppendTransactions writes txs below the last used row of title.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(title)
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", err)
	}

	next := len(rows) + 1
	for i, tx := range txs {
		if err := s.writeRow(title, next+i, tx.Row()); err != nil {
			return fmt.Errorf("AppendTransactions: %w", err)
		}
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("AppendTransactions: save %s: %w", s.path, err)
	}
	return nil
}

// CreateAccount adds a worksheet named marker+name with the header row.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, err := s.file.GetSheetIndex(title); err == nil && idx != -1 {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: sheet %s already exists", title)
	}
	idx, err := s.file.NewSheet(title)
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: new sheet %s: %w", title, err)
	}
	if err := s.writeRow(title, 1, domain.LedgerColumns); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %w", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: save %s: %w", s.path, err)
	}
	return domain.NewAccountSheet(strconv.Itoa(idx), title, s.marker), nil
}

// Close closes the underlying workbook.
func (s *Store) Close() error {
	return s.file.Close()
}

func (s *Store) rows(title string) ([][]string, error) {
	idx, err := s.file.GetSheetIndex(title)
	if err != nil || idx == -1 {
		return nil, fmt.Errorf("%s: %w", title, apperror.ErrAccountNotFound)
	}
	rows, err := s.file.GetRows(title)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", title, err)
	}
	return rows, nil
}

func (s *Store) writeRow(title string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := s.file.SetSheetRow(title, cell, &cells); err != nil {
		return fmt.Errorf("write %s!%s: %w", title, cell, err)
	}
	return nil
}
