package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New("@")
	s.Seed("Summary")

	sheet, err := s.CreateAccount(ctx, "DBS Savings")
	require.NoError(t, err)
	assert.Equal(t, "@DBS Savings", sheet.Title)
	assert.Equal(t, "DBS Savings", sheet.DisplayName)

	_, err = s.CreateAccount(ctx, "DBS Savings")
	assert.Error(t, err)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "@DBS Savings", accounts[0].Title)

	txs := []domain.Transaction{
		{Date: "2024-01-01", Description: "A", Debit: "1.00"},
		{Date: "2024-01-02", Description: "B", Credit: "2.00"},
	}
	require.NoError(t, s.AppendTransactions(ctx, "@DBS Savings", txs))
	require.NoError(t, s.AppendTransactions(ctx, "@DBS Savings", nil))

	got, err := s.ReadTransactions(ctx, "@DBS Savings")
	require.NoError(t, err)
	assert.Equal(t, txs, got)

	_, err = s.ReadTransactions(ctx, "@Missing")
	assert.ErrorIs(t, err, apperror.ErrAccountNotFound)
	assert.ErrorIs(t, s.AppendTransactions(ctx, "@Missing", txs), apperror.ErrAccountNotFound)

	assert.Equal(t, []string{"@DBS Savings", "Summary"}, s.Titles())
	assert.NoError(t, s.Close())
}
