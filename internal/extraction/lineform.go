package extraction

import (
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

const lineFormHeader = "date,description,credit,debit"

// parseLineForm reads a METADATA|type|institution|account line followed by
// date,description,credit,debit records. Records with fewer than four
// fields are dropped and counted.
func parseLineForm(text string) (*domain.ExtractedBatch, int) {
	batch := &domain.ExtractedBatch{
		AccountType:  domain.AccountTypeUnknown,
		AccountName:  domain.DefaultAccountName,
		Transactions: []domain.Transaction{},
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return batch, 0
	}

	meta := strings.Split(strings.TrimPrefix(strings.TrimSpace(lines[0]), metadataPrefix), "|")
	if len(meta) > 0 {
		batch.AccountType = domain.ParseAccountType(meta[0])
	}
	if len(meta) > 1 {
		batch.InstitutionName = strings.TrimSpace(meta[1])
	}
	if len(meta) > 2 {
		if name := strings.TrimSpace(meta[2]); name != "" {
			batch.AccountName = name
		}
	}

	dropped := 0
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, lineFormHeader) || !strings.Contains(line, ",") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			dropped++
			continue
		}
		batch.Transactions = append(batch.Transactions, domain.Transaction{
			Date:        strings.TrimSpace(fields[0]),
			Description: strings.TrimSpace(fields[1]),
			Credit:      strings.TrimSpace(fields[2]),
			Debit:       strings.TrimSpace(fields[3]),
		})
	}
	return batch, dropped
}
