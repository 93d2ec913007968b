// Package accounts picks the ledger account an extracted batch most likely
// belongs to.
package accounts

import (
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Patterns are substrings that mark an account display name as belonging to
// an account type.
var Patterns = map[domain.AccountType][]string{
	domain.AccountTypeBank:    {"bank", "savings", "checking", "current account"},
	domain.AccountTypeCredit:  {"credit card", "visa", "mastercard", "amex"},
	domain.AccountTypeEWallet: {"grab", "touch n go", "tng", "boost", "shopeepay", "ewallet", "e-wallet"},
}

// Suggest returns the first known account matching batch, trying in order
// an exact display name match, a substring match in either direction and
// finally the type patterns. All comparisons ignore case. It returns nil
// when nothing matches.
func Suggest(batch *domain.ExtractedBatch, known []domain.AccountSheet) *domain.AccountSheet {
	if batch == nil || len(known) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(batch.AccountName))

	if name != "" {
		for i := range known {
			if strings.ToLower(known[i].DisplayName) == name {
				return &known[i]
			}
		}
		for i := range known {
			display := strings.ToLower(known[i].DisplayName)
			if display == "" {
				continue
			}
			if strings.Contains(display, name) || strings.Contains(name, display) {
				return &known[i]
			}
		}
	}

	patterns := Patterns[batch.AccountType]
	for i := range known {
		display := strings.ToLower(known[i].DisplayName)
		for _, p := range patterns {
			if strings.Contains(display, p) {
				return &known[i]
			}
		}
	}
	return nil
}
