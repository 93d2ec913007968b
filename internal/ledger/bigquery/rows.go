package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/normalize"
)

const (
	accountsTable = "ledger_accounts"
	rowsTable     = "ledger_rows"
)

// AccountRow is one account sheet.
type AccountRow struct {
	AccountID string                 `bigquery:"account_id"` // REQUIRED
	Title     string                 `bigquery:"title"`      // REQUIRED
	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"`
}

// LedgerRow is one transaction of an account. Seq orders rows within an
// account in append order.
type LedgerRow struct {
	RowID        string `bigquery:"row_id"`        // REQUIRED
	AccountTitle string `bigquery:"account_title"` // REQUIRED
	Seq          int64  `bigquery:"seq"`           // REQUIRED

	Date        string `bigquery:"date"`
	Description string `bigquery:"description"`
	Credit      string `bigquery:"credit"`
	Debit       string `bigquery:"debit"`

	// NormalizedDate is set when Date parses as a calendar date.
	NormalizedDate bigquery.NullDate      `bigquery:"normalized_date"`
	InsertedTS     bigquery.NullTimestamp `bigquery:"inserted_ts"`
}

func newLedgerRow(id, title string, seq int64, tx domain.Transaction, now time.Time) *LedgerRow {
	row := &LedgerRow{
		RowID:        id,
		AccountTitle: title,
		Seq:          seq,
		Date:         tx.Date,
		Description:  tx.Description,
		Credit:       tx.Credit,
		Debit:        tx.Debit,
		InsertedTS:   bigquery.NullTimestamp{Timestamp: now, Valid: true},
	}
	if d, err := civil.ParseDate(normalize.Date(tx.Date)); err == nil {
		row.NormalizedDate = bigquery.NullDate{Date: d, Valid: true}
	}
	return row
}

func (r *LedgerRow) transaction() domain.Transaction {
	return domain.Transaction{
		Date:        r.Date,
		Description: r.Description,
		Credit:      r.Credit,
		Debit:       r.Debit,
	}
}
