package extraction

import (
	"context"
	"strconv"
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// Parsed is a parsed model response.
type Parsed struct {
	Batch *domain.ExtractedBatch
	Form  Form
	// DroppedLines counts line form records with too few fields.
	DroppedLines int
}

// Parser turns raw model text into an ExtractedBatch.
type Parser struct {
	repairAttempts int
}

// NewParser creates a parser. repairAttempts <= 0 selects
// DefaultRepairAttempts.
func NewParser(repairAttempts int) *Parser {
	if repairAttempts <= 0 {
		repairAttempts = DefaultRepairAttempts
	}
	return &Parser{repairAttempts: repairAttempts}
}

// Parse extracts, repairs and decodes raw. Either transport shape is
// accepted.
func (p *Parser) Parse(ctx context.Context, raw string) (*Parsed, error) {
	log := logger.FromContext(ctx)

	payload, err := ExtractPayload(raw)
	if err != nil {
		return nil, err
	}

	if payload.Form == FormLine {
		batch, dropped := parseLineForm(payload.Text)
		if dropped > 0 {
			log.Warn().Int("dropped", dropped).Msg("dropped line form records with missing fields")
		}
		return &Parsed{Batch: batch, Form: FormLine, DroppedLines: dropped}, nil
	}

	doc, err := Repair(ctx, payload.Text, p.repairAttempts)
	if err != nil {
		return nil, err
	}
	if err := validateBatchDocument(doc); err != nil {
		log.Warn().Err(err).Msg("model JSON does not match the expected shape")
	}
	return &Parsed{Batch: batchFromDocument(doc), Form: FormBrace}, nil
}

func batchFromDocument(doc map[string]any) *domain.ExtractedBatch {
	batch := &domain.ExtractedBatch{
		AccountType:     domain.ParseAccountType(stringValue(doc["accountType"])),
		InstitutionName: strings.TrimSpace(stringValue(doc["institutionName"])),
		AccountName:     strings.TrimSpace(stringValue(doc["accountName"])),
		Transactions:    []domain.Transaction{},
	}
	if batch.AccountName == "" {
		batch.AccountName = domain.DefaultAccountName
	}

	items, _ := doc["transactions"].([]any)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		batch.Transactions = append(batch.Transactions, domain.Transaction{
			Date:        stringValue(obj["date"]),
			Description: stringValue(obj["description"]),
			Credit:      stringValue(obj["credit"]),
			Debit:       stringValue(obj["debit"]),
		})
	}
	return batch
}

// stringValue renders a decoded JSON value as text. Numbers keep their
// shortest decimal form, null becomes "".
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
