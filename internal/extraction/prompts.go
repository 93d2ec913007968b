package extraction

import (
	"fmt"
	"strings"
)

// Transport selects the output shape requested from the model.
type Transport string

const (
	TransportBrace Transport = "brace"
	TransportLine  Transport = "line"
)

// ParseTransport maps a config value to a Transport. Unknown values select
// TransportBrace.
func ParseTransport(s string) Transport {
	if strings.EqualFold(strings.TrimSpace(s), string(TransportLine)) {
		return TransportLine
	}
	return TransportBrace
}

const promptIntro = `You are a financial transaction extractor. Read the attached bank statement, credit card statement or e-wallet screenshot and extract EVERY transaction it lists.

For each transaction capture:
1. The date (YYYY-MM-DD when it can be determined, otherwise as printed)
2. The description (merchant or transaction details)
3. The amount, digits only, without currency symbols
4. Whether money came in (credit) or went out (debit)

Also identify the account type (bank, credit or ewallet), the institution (e.g. DBS, Grab, Citi) and the account name or identifier (e.g. Savings 123, GrabPay).
`

const promptRules = `
Rules:
- For credit cards: purchases are debits, payments and refunds are credits
- For banks: deposits are credits, withdrawals are debits
- For e-wallets: top-ups are credits, payments are debits
- Leave the unused side of each transaction empty
- If there are no transactions, return an empty list
`

const braceFormat = `
Return the data in this EXACT JSON format and nothing else:
{
  "accountType": "bank|credit|ewallet",
  "institutionName": "issuer name",
  "accountName": "account identifier",
  "transactions": [
    {"date": "YYYY-MM-DD", "description": "text", "credit": "amount or empty string", "debit": "amount or empty string"}
  ]
}
Return ONLY valid JSON. Do not use Markdown code fences.
`

const lineFormat = `
Return the data in this EXACT plain text format and nothing else:
METADATA|<accountType>|<institutionName>|<accountName>
date,description,credit,debit
<one line per transaction, comma separated, no commas inside fields>
`

// BuildPrompt assembles the extraction prompt for transport. A non-empty
// dateFormatHint tells the model how ambiguous dates are written.
func BuildPrompt(transport Transport, dateFormatHint string) string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString(promptRules)
	if hint := strings.TrimSpace(dateFormatHint); hint != "" {
		fmt.Fprintf(&b, "- Dates in this document are written as %s; convert them to YYYY-MM-DD\n", hint)
	}
	if transport == TransportLine {
		b.WriteString(lineFormat)
	} else {
		b.WriteString(braceFormat)
	}
	return b.String()
}
