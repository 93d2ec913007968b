// Package ledger defines the storage port for account sheets.
package ledger

import (
	"context"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Store is an append only ledger organised in account sheets.
type Store interface {
	// ListAccounts returns the sheets whose title carries the account marker.
	ListAccounts(ctx context.Context) ([]domain.AccountSheet, error)

	// ReadTransactions returns the rows of an account in storage order. The
	// header row and rows with fewer than two cells are skipped.
	ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error)

	// AppendTransactions appends txs in order. An empty slice is a no-op.
	AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error

	// CreateAccount creates the sheet marker+name with the header row.
	CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error)

	// Close releases backend resources.
	Close() error
}
