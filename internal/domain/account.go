package domain

import "strings"

// DefaultAccountMarker prefixes the title of every sheet that holds an account.
const DefaultAccountMarker = "@"

// AccountSheet identifies one account inside a ledger.
type AccountSheet struct {
	// ID is backend specific (sheet id, Notion option id, file name).
	ID string `json:"id"`
	// Title is the canonical name including the marker, e.g. "@DBS Savings".
	Title string `json:"title"`
	// DisplayName is Title without the marker.
	DisplayName string `json:"display_name"`
}

// IsAccountTitle reports whether title names an account sheet.
func IsAccountTitle(title, marker string) bool {
	return marker != "" && strings.HasPrefix(title, marker) && len(title) > len(marker)
}

// AccountTitle builds the canonical title for an account name.
func AccountTitle(name, marker string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, marker) {
		return name
	}
	return marker + name
}

// DisplayName strips the marker from a title.
func DisplayName(title, marker string) string {
	return strings.TrimPrefix(title, marker)
}

// NewAccountSheet builds an AccountSheet from a title.
func NewAccountSheet(id, title, marker string) AccountSheet {
	return AccountSheet{ID: id, Title: title, DisplayName: DisplayName(title, marker)}
}
