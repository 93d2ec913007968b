// Package notion stores the ledger in a single Notion database. Every page
// carries the account it belongs to in a select property; accounts are
// registered by a marker page of kind "account".
package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// Store is a ledger backed by a Notion database.
type Store struct {
	svc        Service
	databaseID string
	marker     string
}

// New creates a store writing to databaseID through svc.
func New(svc Service, databaseID, marker string) *Store {
	return &Store{svc: svc, databaseID: databaseID, marker: marker}
}

func kindFilter(kind string) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{
		Property: propKind,
		Select:   &notionapi.SelectFilterCondition{Equals: kind},
	}
}

func accountFilter(title string) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{
		Property: propAccount,
		Select:   &notionapi.SelectFilterCondition{Equals: title},
	}
}

// queryAll follows the pagination cursor until every page was read.
func (s *Store) queryAll(ctx context.Context, filter notionapi.Filter, sorts []notionapi.SortObject) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter:   filter,
			Sorts:    sorts,
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := s.svc.QueryDatabase(ctx, s.databaseID, req)
		if err != nil {
			return nil, &apperror.UpstreamError{Service: "notion", Err: err}
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

// ListAccounts returns registered accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	pages, err := s.queryAll(ctx, kindFilter(kindAccount), []notionapi.SortObject{
		{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
	})
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}

	out := []domain.AccountSheet{}
	for _, page := range pages {
		title := selectOf(page, propAccount)
		if domain.IsAccountTitle(title, s.marker) {
			out = append(out, domain.NewAccountSheet(string(page.ID), title, s.marker))
		}
	}
	return out, nil
}

func (s *Store) exists(ctx context.Context, title string) (bool, error) {
	resp, err := s.svc.QueryDatabase(ctx, s.databaseID, &notionapi.DatabaseQueryRequest{
		Filter:   notionapi.AndCompoundFilter{kindFilter(kindAccount), accountFilter(title)},
		PageSize: 1,
	})
	if err != nil {
		return false, &apperror.UpstreamError{Service: "notion", Err: err}
	}
	return len(resp.Results) > 0, nil
}

func (s *Store) rows(ctx context.Context, title string) ([]notionapi.Page, error) {
	return s.queryAll(ctx,
		notionapi.AndCompoundFilter{kindFilter(kindRow), accountFilter(title)},
		[]notionapi.SortObject{{Property: propSeq, Direction: notionapi.SortOrderASC}},
	)
}

// ReadTransactions returns the rows of title ordered by Seq.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	ok, err := s.exists(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("ReadTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}

	pages, err := s.rows(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", err)
	}

	txs := []domain.Transaction{}
	for _, page := range pages {
		tx := transactionFromPage(page)
		if tx.Description == "" && tx.Credit == "" && tx.Debit == "" {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// AppendTransactions creates one page per transaction. Pages are created
// one at a time; a failure leaves the earlier pages in place.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)

	ok, err := s.exists(ctx, title)
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", err)
	}
	if !ok {
		return fmt.Errorf("AppendTransactions: %s: %w", title, apperror.ErrAccountNotFound)
	}

	existing, err := s.rows(ctx, title)
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", err)
	}
	var seq int64
	for _, page := range existing {
		if n := seqOf(page); n > seq {
			seq = n
		}
	}

	for i, tx := range txs {
		seq++
		if _, err := s.svc.CreatePage(ctx, s.databaseID, transactionProperties(title, seq, tx)); err != nil {
			log.Error().Err(err).Str("account", title).Int("written", i).Msg("failed to create Notion page")
			return fmt.Errorf("AppendTransactions: %w", &apperror.UpstreamError{Service: "notion", Err: err})
		}
	}
	log.Info().Str("account", title).Int("count", len(txs)).Msg("appended transactions to Notion")
	return nil
}

// CreateAccount registers marker+name.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)

	ok, err := s.exists(ctx, title)
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %w", err)
	}
	if ok {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: account %s already exists", title)
	}

	page, err := s.svc.CreatePage(ctx, s.databaseID, accountProperties(title))
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: %w", &apperror.UpstreamError{Service: "notion", Err: err})
	}
	return domain.NewAccountSheet(string(page.ID), title, s.marker), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
