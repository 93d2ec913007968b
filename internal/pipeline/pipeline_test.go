package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/dedup"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger/memory"
)

func tx(date, desc, credit, debit string) domain.Transaction {
	return domain.Transaction{Date: date, Description: desc, Credit: credit, Debit: debit}
}

func grabBatch() *domain.ExtractedBatch {
	return &domain.ExtractedBatch{
		AccountType:     domain.AccountTypeEWallet,
		InstitutionName: "Grab",
		AccountName:     "GrabPay",
		Transactions: []domain.Transaction{
			tx("2024-01-05", "Grab Ride", "", "12.50"),
			tx("2024-01-06", "Top up", "50.00", ""),
		},
	}
}

func testJob() *jobs.ExtractDocumentJob {
	return JobFromDocument(&intake.Document{
		ID:       "doc-1",
		Name:     "jan.pdf",
		MIMEType: "application/pdf",
		Size:     4,
		Data:     []byte("%PDF"),
	})
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	calls := 0
	step := stepFunc(func(ctx context.Context, s *ImportState) error {
		calls++
		if calls == 2 {
			return errors.New("nope")
		}
		return nil
	})
	p := NewPipeline[ImportState](step, step, step)

	err := p.Execute(context.Background(), &ImportState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 2 failed")
	assert.Equal(t, 2, calls)
}

type stepFunc func(ctx context.Context, s *ImportState) error

func (f stepFunc) Execute(ctx context.Context, s *ImportState) error { return f(ctx, s) }

func TestProcessor_HandleJob(t *testing.T) {
	store := memory.New("@")
	store.Seed("@Maybank Savings")
	store.Seed("@GrabPay Wallet")

	var gotHint, gotMIME string
	ex := &MockExtractor{ExtractFunc: func(ctx context.Context, data []byte, mimeType, hint string) (*domain.ExtractedBatch, error) {
		gotHint, gotMIME = hint, mimeType
		return grabBatch(), nil
	}}
	arc := archive.NewMock("statements")

	p := NewProcessor(ex, store, arc, "DD/MM/YYYY")
	job := testJob()
	require.NoError(t, p.HandleJob(context.Background(), job))

	assert.Equal(t, "DD/MM/YYYY", gotHint)
	assert.Equal(t, "application/pdf", gotMIME)
	require.NotNil(t, job.Batch)
	assert.Len(t, job.Batch.Transactions, 2)
	require.NotNil(t, job.SuggestedAccount)
	assert.Equal(t, "@GrabPay Wallet", job.SuggestedAccount.Title)
	assert.Equal(t, "@GrabPay Wallet", job.AssignedAccount)

	assert.Contains(t, job.SourceURI, "gs://statements/statements/")
	assert.Contains(t, arc.Objects, job.SourceURI)
}

func TestProcessor_KeepsManualAssignmentAndSourceURI(t *testing.T) {
	store := memory.New("@")
	store.Seed("@GrabPay")
	ex := &MockExtractor{ExtractFunc: func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return grabBatch(), nil
	}}
	arc := archive.NewMock("b")

	job := testJob()
	job.SourceURI = "gs://b/already.pdf"
	job.AssignedAccount = "@Other"
	require.NoError(t, NewProcessor(ex, store, arc, "").HandleJob(context.Background(), job))

	assert.Equal(t, "@Other", job.AssignedAccount)
	assert.Equal(t, "@GrabPay", job.SuggestedAccount.Title)
	assert.Equal(t, "gs://b/already.pdf", job.SourceURI)
	assert.Empty(t, arc.Objects)
}

func TestProcessor_ErrorIsTaggedWithDocument(t *testing.T) {
	ex := &MockExtractor{ExtractFunc: func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return nil, apperror.ErrNoStructuredData
	}}
	p := NewProcessor(ex, memory.New("@"), nil, "")

	err := p.HandleJob(context.Background(), testJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrNoStructuredData)

	var docErr *apperror.DocumentError
	require.ErrorAs(t, err, &docErr)
	assert.Equal(t, "doc-1", docErr.DocumentID)
	assert.Equal(t, "jan.pdf", docErr.Name)
}

func TestArchiveDocumentStep_UsesObjectName(t *testing.T) {
	arc := archive.NewMock("b")
	step := &ArchiveDocumentStep{Archive: arc, Now: func() time.Time {
		return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	}}
	state := &ExtractionState{Job: testJob()}
	require.NoError(t, step.Execute(context.Background(), state))
	assert.Equal(t, "gs://b/statements/2024/03/doc-1-jan.pdf", state.Job.SourceURI)
}

func TestImporter_PreviewAndImport(t *testing.T) {
	ctx := context.Background()
	store := memory.New("@")
	store.Seed("@GrabPay", tx("2024-01-05", "GRAB  ride", "", "12.5"))

	im := NewImporter(store, dedup.New())
	batch := grabBatch()

	preview, err := im.Preview(ctx, "@GrabPay", batch.Transactions)
	require.NoError(t, err)
	assert.Len(t, preview.Unique, 1)
	assert.Len(t, preview.Duplicates, 1)
	assert.Equal(t, 0, preview.Appended)
	assert.Equal(t, 50.0, preview.Stats.DuplicateRate)

	rows, _ := store.ReadTransactions(ctx, "@GrabPay")
	assert.Len(t, rows, 1)

	report, err := im.Import(ctx, "@GrabPay", batch.Transactions)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Appended)

	rows, _ = store.ReadTransactions(ctx, "@GrabPay")
	require.Len(t, rows, 2)
	assert.Equal(t, "Top up", rows[1].Description)

	again, err := im.Import(ctx, "@GrabPay", batch.Transactions)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Appended)
	assert.Equal(t, 2, again.Stats.Duplicates)
}

func TestImporter_UnknownAccount(t *testing.T) {
	im := NewImporter(memory.New("@"), dedup.New())
	_, err := im.Import(context.Background(), "@Missing", grabBatch().Transactions)
	assert.ErrorIs(t, err, apperror.ErrAccountNotFound)
}

func TestImporter_ImportJobs(t *testing.T) {
	ctx := context.Background()
	store := memory.New("@")
	store.Seed("@GrabPay")

	done := &jobs.ExtractDocumentJob{JobID: "1", Filename: "a.pdf", Status: jobs.JobStatusDone, Batch: grabBatch(), AssignedAccount: "@GrabPay"}
	repeat := &jobs.ExtractDocumentJob{JobID: "2", Filename: "b.pdf", Status: jobs.JobStatusDone, Batch: grabBatch(), AssignedAccount: "@GrabPay"}
	missing := &jobs.ExtractDocumentJob{JobID: "3", Filename: "c.pdf", Status: jobs.JobStatusDone, Batch: grabBatch(), AssignedAccount: "@Gone"}
	unassigned := &jobs.ExtractDocumentJob{JobID: "4", Filename: "d.pdf", Status: jobs.JobStatusDone, Batch: grabBatch()}
	failed := &jobs.ExtractDocumentJob{JobID: "5", Filename: "e.pdf", Status: jobs.JobStatusError}

	out := NewImporter(store, dedup.New()).ImportJobs(ctx, []*jobs.ExtractDocumentJob{done, repeat, missing, unassigned, failed})
	require.Len(t, out, 5)

	assert.Equal(t, OutcomeImported, out[0].Status)
	assert.Equal(t, 2, out[0].Appended)
	assert.NotNil(t, done.ImportedAt)

	assert.Equal(t, OutcomeSkipped, out[1].Status)
	assert.Equal(t, 2, out[1].Duplicates)
	assert.Nil(t, repeat.ImportedAt)

	assert.Equal(t, OutcomeFailed, out[2].Status)
	assert.Contains(t, out[2].Error, "account not found")

	assert.Equal(t, OutcomeSkipped, out[3].Status)
	assert.Equal(t, "no account assigned", out[3].Error)

	assert.Equal(t, OutcomeSkipped, out[4].Status)
	assert.Equal(t, "job is error", out[4].Error)
}
