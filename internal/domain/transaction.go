package domain

// Transaction is one statement line as extracted by the model or read back
// from a ledger. Values are kept as the text that was extracted; callers that
// need comparisons go through the normalize package.
// Credit and Debit are not mutually exclusive here even though statements
// usually populate only one of them.
type Transaction struct {
	Date        string `json:"date" csv:"Date"`
	Description string `json:"description" csv:"Description"`
	Credit      string `json:"credit" csv:"Credit"`
	Debit       string `json:"debit" csv:"Debit"`
}

// LedgerColumns is the header row written to every account sheet.
var LedgerColumns = []string{"Date", "Description", "Credit", "Debit"}

// Row returns the transaction as a ledger row in LedgerColumns order.
func (t Transaction) Row() []string {
	return []string{t.Date, t.Description, t.Credit, t.Debit}
}

// TransactionFromRow builds a transaction from a ledger row. Rows with fewer
// than two cells carry no usable data and are reported with ok=false.
func TransactionFromRow(row []string) (Transaction, bool) {
	if len(row) < 2 {
		return Transaction{}, false
	}
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Transaction{
		Date:        cell(0),
		Description: cell(1),
		Credit:      cell(2),
		Debit:       cell(3),
	}, true
}
