// Package bigquery stores the ledger in two BigQuery tables: one row per
// account and one row per transaction.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Store is a ledger backed by BigQuery.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	marker    string
	now       func() time.Time
}

// New creates a client for projectID. Call EnsureTables once before use on a
// fresh dataset.
func New(ctx context.Context, projectID, datasetID, marker string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: creating client: %w", err)
	}
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		marker:    marker,
		now:       time.Now,
	}, nil
}

func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// EnsureTables creates the ledger tables when they are missing.
func (s *Store) EnsureTables(ctx context.Context) error {
	tables := map[string]any{
		accountsTable: AccountRow{},
		rowsTable:     LedgerRow{},
	}
	for name, model := range tables {
		schema, err := bigquery.InferSchema(model)
		if err != nil {
			return fmt.Errorf("EnsureTables: infer %s schema: %w", name, err)
		}
		err = s.client.Dataset(s.datasetID).Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("EnsureTables: create %s: %w", name, err)
		}
	}
	return nil
}

// ListAccounts returns accounts in creation order.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT account_id, title, created_ts
		FROM %s
		ORDER BY created_ts ASC
	`, s.table(accountsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: reading query: %w", wrap(err))
	}

	out := []domain.AccountSheet{}
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: iterating: %w", wrap(err))
		}
		if domain.IsAccountTitle(row.Title, s.marker) {
			out = append(out, domain.NewAccountSheet(row.AccountID, row.Title, s.marker))
		}
	}
	return out, nil
}

func (s *Store) accountExists(ctx context.Context, title string) (bool, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE title = @title
	`, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "title", Value: title}}

	it, err := q.Read(ctx)
	if err != nil {
		return false, wrap(err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return false, wrap(err)
	}
	return row.N > 0, nil
}

// ReadTransactions returns the rows of title ordered by seq.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	exists, err := s.accountExists(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("ReadTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}

	q := s.client.Query(fmt.Sprintf(`
		SELECT row_id, account_title, seq, date, description, credit, debit, normalized_date, inserted_ts
		FROM %s
		WHERE account_title = @title
		ORDER BY seq ASC
	`, s.table(rowsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "title", Value: title}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: reading query: %w", wrap(err))
	}

	txs := []domain.Transaction{}
	for {
		var row LedgerRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadTransactions: iterating: %w", wrap(err))
		}
		if row.Description == "" && row.Credit == "" && row.Debit == "" {
			continue
		}
		txs = append(txs, row.transaction())
	}
	return txs, nil
}

func (s *Store) nextSeq(ctx context.Context, title string) (int64, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT IFNULL(MAX(seq), 0) AS max_seq
		FROM %s
		WHERE account_title = @title
	`, s.table(rowsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "title", Value: title}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, wrap(err)
	}
	var row struct {
		MaxSeq int64 `bigquery:"max_seq"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return 0, wrap(err)
	}
	return row.MaxSeq + 1, nil
}

// AppendTransactions streams txs into the rows table.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	exists, err := s.accountExists(ctx, title)
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", err)
	}
	if !exists {
		return fmt.Errorf("AppendTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}

	seq, err := s.nextSeq(ctx, title)
	if err != nil {
		return fmt.Errorf("AppendTransactions: next seq: %w", err)
	}

	rows := buildRows(title, seq, txs, s.now())
	inserter := s.client.Dataset(s.datasetID).Table(rowsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("AppendTransactions: inserting rows: %w", wrap(err))
	}
	return nil
}

func buildRows(title string, firstSeq int64, txs []domain.Transaction, now time.Time) []*LedgerRow {
	rows := make([]*LedgerRow, len(txs))
	for i, tx := range txs {
		rows[i] = newLedgerRow(uuid.New().String(), title, firstSeq+int64(i), tx, now)
	}
	return rows
}

// CreateAccount inserts an account row.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)

	exists, err := s.accountExists(ctx, title)
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %w", err)
	}
	if exists {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: account %s already exists", title)
	}

	row := &AccountRow{
		AccountID: uuid.New().String(),
		Title:     title,
		CreatedTS: bigquery.NullTimestamp{Timestamp: s.now(), Valid: true},
	}
	if err := s.client.Dataset(s.datasetID).Table(accountsTable).Inserter().Put(ctx, row); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: inserting account: %w", wrap(err))
	}
	return domain.NewAccountSheet(row.AccountID, title, s.marker), nil
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func wrap(err error) error {
	up := &apperror.UpstreamError{Service: "bigquery", Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		up.StatusCode = apiErr.Code
	}
	return up
}
