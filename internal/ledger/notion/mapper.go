package notion

import (
	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// Database property names. The database needs a title property named
// "Description", rich text properties "Date", "Credit" and "Debit", select
// properties "Account" and "Kind", and a number property "Seq".
const (
	propDescription = "Description"
	propDate        = "Date"
	propCredit      = "Credit"
	propDebit       = "Debit"
	propAccount     = "Account"
	propKind        = "Kind"
	propSeq         = "Seq"

	kindAccount = "account"
	kindRow     = "row"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// accountProperties describes the marker page that registers an account.
func accountProperties(title string) notionapi.Properties {
	return notionapi.Properties{
		propDescription: notionapi.TitleProperty{Title: richText(title)},
		propAccount:     notionapi.SelectProperty{Select: notionapi.Option{Name: title}},
		propKind:        notionapi.SelectProperty{Select: notionapi.Option{Name: kindAccount}},
		propSeq:         notionapi.NumberProperty{Number: 0},
	}
}

// transactionProperties converts a transaction to page properties.
func transactionProperties(title string, seq int64, tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		propDescription: notionapi.TitleProperty{Title: richText(tx.Description)},
		propAccount:     notionapi.SelectProperty{Select: notionapi.Option{Name: title}},
		propKind:        notionapi.SelectProperty{Select: notionapi.Option{Name: kindRow}},
		propSeq:         notionapi.NumberProperty{Number: float64(seq)},
	}
	if tx.Date != "" {
		props[propDate] = notionapi.RichTextProperty{RichText: richText(tx.Date)}
	}
	if tx.Credit != "" {
		props[propCredit] = notionapi.RichTextProperty{RichText: richText(tx.Credit)}
	}
	if tx.Debit != "" {
		props[propDebit] = notionapi.RichTextProperty{RichText: richText(tx.Debit)}
	}
	return props
}

func plainText(rt []notionapi.RichText) string {
	out := ""
	for _, r := range rt {
		if r.PlainText != "" {
			out += r.PlainText
		} else if r.Text != nil {
			out += r.Text.Content
		}
	}
	return out
}

// textOf reads a title or rich text property.
func textOf(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

func selectOf(page notionapi.Page, name string) string {
	if p, ok := page.Properties[name].(*notionapi.SelectProperty); ok {
		return p.Select.Name
	}
	return ""
}

func seqOf(page notionapi.Page) int64 {
	if p, ok := page.Properties[propSeq].(*notionapi.NumberProperty); ok {
		return int64(p.Number)
	}
	return 0
}

func transactionFromPage(page notionapi.Page) domain.Transaction {
	return domain.Transaction{
		Date:        textOf(page, propDate),
		Description: textOf(page, propDescription),
		Credit:      textOf(page, propCredit),
		Debit:       textOf(page, propDebit),
	}
}
