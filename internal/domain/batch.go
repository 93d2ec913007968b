package domain

import "strings"

// AccountType classifies the kind of statement a batch came from.
type AccountType string

const (
	AccountTypeBank    AccountType = "bank"
	AccountTypeCredit  AccountType = "credit"
	AccountTypeEWallet AccountType = "ewallet"
	AccountTypeUnknown AccountType = "unknown"
)

// DefaultAccountName is used when the model does not report an account name.
const DefaultAccountName = "Unknown Account"

var accountTypeAliases = map[string]AccountType{
	"bank":        AccountTypeBank,
	"credit":      AccountTypeCredit,
	"credit card": AccountTypeCredit,
	"creditcard":  AccountTypeCredit,
	"card":        AccountTypeCredit,
	"ewallet":     AccountTypeEWallet,
	"e-wallet":    AccountTypeEWallet,
	"wallet":      AccountTypeEWallet,
}

// ParseAccountType maps free text reported by the model to an AccountType.
// Anything unrecognised is AccountTypeUnknown.
func ParseAccountType(s string) AccountType {
	if t, ok := accountTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return AccountTypeUnknown
}

// ExtractedBatch is the result of extracting one document.
type ExtractedBatch struct {
	AccountType     AccountType   `json:"account_type"`
	InstitutionName string        `json:"institution_name"`
	AccountName     string        `json:"account_name"`
	Transactions    []Transaction `json:"transactions"`
}
