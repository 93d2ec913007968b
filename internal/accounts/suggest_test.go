package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

func sheets(titles ...string) []domain.AccountSheet {
	out := make([]domain.AccountSheet, len(titles))
	for i, title := range titles {
		out[i] = domain.NewAccountSheet(title, title, "@")
	}
	return out
}

func TestSuggest(t *testing.T) {
	known := sheets("@DBS Savings", "@Citi Rewards", "@Visa Platinum", "@GrabPay Wallet")

	tests := []struct {
		name      string
		batch     domain.ExtractedBatch
		wantTitle string
	}{
		{"exact ignores case", domain.ExtractedBatch{AccountName: "citi rewards"}, "@Citi Rewards"},
		{"batch name inside sheet", domain.ExtractedBatch{AccountName: "Savings"}, "@DBS Savings"},
		{"sheet name inside batch", domain.ExtractedBatch{AccountName: "Citi Rewards Card 1234"}, "@Citi Rewards"},
		{"credit pattern", domain.ExtractedBatch{AccountType: domain.AccountTypeCredit, AccountName: "Card 9876"}, "@Visa Platinum"},
		{"ewallet pattern", domain.ExtractedBatch{AccountType: domain.AccountTypeEWallet, AccountName: "Wallet X"}, "@GrabPay Wallet"},
		{"bank pattern", domain.ExtractedBatch{AccountType: domain.AccountTypeBank, AccountName: "Current 001"}, "@DBS Savings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(&tt.batch, known)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantTitle, got.Title)
		})
	}
}

func TestSuggest_ExactBeatsSubstring(t *testing.T) {
	known := sheets("@DBS Savings Joint", "@DBS Savings")
	got := Suggest(&domain.ExtractedBatch{AccountName: "DBS Savings"}, known)
	require.NotNil(t, got)
	assert.Equal(t, "@DBS Savings", got.Title)
}

func TestSuggest_NoMatch(t *testing.T) {
	known := sheets("@DBS Savings", "@Citi Rewards")
	assert.Nil(t, Suggest(&domain.ExtractedBatch{AccountType: domain.AccountTypeEWallet, AccountName: "GrabPay"}, known))
	assert.Nil(t, Suggest(&domain.ExtractedBatch{AccountType: domain.AccountTypeUnknown, AccountName: "Mystery"}, known))
	assert.Nil(t, Suggest(&domain.ExtractedBatch{AccountName: "DBS"}, nil))
	assert.Nil(t, Suggest(nil, known))
}

func TestSuggest_EmptyNameSkipsNameRules(t *testing.T) {
	known := sheets("@Citi Rewards", "@Boost")
	got := Suggest(&domain.ExtractedBatch{AccountType: domain.AccountTypeEWallet}, known)
	require.NotNil(t, got)
	assert.Equal(t, "@Boost", got.Title)
}
