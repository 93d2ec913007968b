// Package normalize turns extracted transaction fields into canonical forms
// so that records produced by different statements can be compared.
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// dateLayouts are tried in order. Slash dates are month first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"02 January 2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2-Jan-06",
	"02-Jan-06",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
}

// Date returns raw as YYYY-MM-DD when it parses as a date. Otherwise the
// trimmed input is returned unchanged. Empty input yields "".
func Date(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.In(time.Local).Format("2006-01-02")
		}
	}
	return s
}

var (
	nonNumeric    = regexp.MustCompile(`[^0-9.\-]`)
	numericPrefix = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
)

// Amount strips everything but digits, '.' and '-', reads the longest
// leading number and formats it with exactly two decimals. Anything that is
// not a number becomes "0.00". Amount(Amount(x)) == Amount(x).
func Amount(raw string) string {
	cleaned := nonNumeric.ReplaceAllString(raw, "")
	m := numericPrefix.FindString(cleaned)
	if m == "" {
		return "0.00"
	}
	m = strings.TrimSuffix(m, ".")
	switch {
	case strings.HasPrefix(m, "-."):
		m = "-0" + m[1:]
	case strings.HasPrefix(m, "."):
		m = "0" + m
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

// Description lowercases raw, collapses whitespace runs to a single space
// and trims.
func Description(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// Key is the normalized identity of a transaction.
type Key struct {
	Date        string
	Amount      string
	Description string
}

// AmountOf returns the side of t used for comparison: credit when present,
// debit otherwise. A transaction carrying both is compared on credit alone.
func AmountOf(t domain.Transaction) string {
	if strings.TrimSpace(t.Credit) != "" {
		return t.Credit
	}
	return t.Debit
}

// Fingerprint computes the normalized key of t.
func Fingerprint(t domain.Transaction) Key {
	return Key{
		Date:        Date(t.Date),
		Amount:      Amount(AmountOf(t)),
		Description: Description(t.Description),
	}
}
