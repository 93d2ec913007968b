// Package sheets stores the ledger in a Google Sheets spreadsheet, one tab
// per account.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

var spreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID accepts a spreadsheet URL or a bare id.
func ExtractSpreadsheetID(urlOrID string) string {
	if m := spreadsheetURL.FindStringSubmatch(urlOrID); m != nil {
		return m[1]
	}
	return strings.TrimSpace(urlOrID)
}

// Config selects the spreadsheet and how to authenticate.
type Config struct {
	Spreadsheet     string
	CredentialsFile string
	APIKey          string
	Marker          string
}

// Store is a ledger backed by the Sheets API.
type Store struct {
	svc    *sheets.Service
	id     string
	marker string
}

// New connects to the spreadsheet in cfg. Extra client options are appended
// after the credentials.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	id := ExtractSpreadsheetID(cfg.Spreadsheet)
	if id == "" {
		return nil, fmt.Errorf("sheets.New: spreadsheet id is required")
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.New: create service: %w", err)
	}
	return &Store{svc: svc, id: id, marker: cfg.Marker}, nil
}

// quoteRange builds an A1 range for columns A..D of title.
func quoteRange(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

// ListAccounts returns the tabs whose title carries the marker.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.AccountSheet, error) {
	resp, err := s.svc.Spreadsheets.Get(s.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", classify(err, ""))
	}

	out := []domain.AccountSheet{}
	for _, sh := range resp.Sheets {
		if sh.Properties == nil || !domain.IsAccountTitle(sh.Properties.Title, s.marker) {
			continue
		}
		out = append(out, domain.NewAccountSheet(strconv.FormatInt(sh.Properties.SheetId, 10), sh.Properties.Title, s.marker))
	}
	return out, nil
}

// ReadTransactions reads columns A..D of title, skipping the header row.
func (s *Store) ReadTransactions(ctx context.Context, title string) ([]domain.Transaction, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, quoteRange(title, "A:D")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("ReadTransactions: %w", classify(err, title))
	}

	txs := []domain.Transaction{}
	for i, row := range resp.Values {
		if i == 0 {
			continue
		}
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = fmt.Sprint(c)
		}
		if tx, ok := domain.TransactionFromRow(cells); ok {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

// AppendTransactions appends txs with USER_ENTERED semantics.
func (s *Store) AppendTransactions(ctx context.Context, title string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	values := make([][]interface{}, len(txs))
	for i, tx := range txs {
		values[i] = toCells(tx.Row())
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.id, quoteRange(title, "A:D"), &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("AppendTransactions: %w", classify(err, title))
	}
	return nil
}

// CreateAccount adds a tab and writes the header row.
func (s *Store) CreateAccount(ctx context.Context, name string) (domain.AccountSheet, error) {
	title := domain.AccountTitle(name, s.marker)

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}}},
		},
	}
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.id, req).Context(ctx).Do()
	if err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: add sheet: %w", classify(err, ""))
	}

	header := &sheets.ValueRange{Values: [][]interface{}{toCells(domain.LedgerColumns)}}
	if _, err := s.svc.Spreadsheets.Values.Update(s.id, quoteRange(title, "A1:D1"), header).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return domain.AccountSheet{}, fmt.Errorf("CreateAccount: write header: %w", classify(err, title))
	}

	id := ""
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = strconv.FormatInt(resp.Replies[0].AddSheet.Properties.SheetId, 10)
	}
	return domain.NewAccountSheet(id, title, s.marker), nil
}

// Close is a no-op; the service holds no resources that need releasing.
func (s *Store) Close() error { return nil }

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// classify wraps API errors. A range that cannot be parsed means the tab
// does not exist.
func classify(err error, title string) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &apperror.UpstreamError{Service: "sheets", Err: err}
	}
	if title != "" && apiErr.Code == 400 && strings.Contains(apiErr.Message, "Unable to parse range") {
		return fmt.Errorf("%s: %w", title, apperror.ErrAccountNotFound)
	}
	return &apperror.UpstreamError{Service: "sheets", StatusCode: apiErr.Code, Err: err}
}
