package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-consolidator/internal/accounts"
	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/dedup"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// PipelineStep represents a single step operating on state S.
type PipelineStep[S any] interface {
	Execute(ctx context.Context, state *S) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline[S any] struct {
	steps []PipelineStep[S]
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline[S any](steps ...PipelineStep[S]) *Pipeline[S] {
	return &Pipeline[S]{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline[S]) Execute(ctx context.Context, state *S) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// ExtractionState holds the shared state of the document processing steps.
type ExtractionState struct {
	Job      *jobs.ExtractDocumentJob
	Accounts []domain.AccountSheet
}

// Step 1: ArchiveDocumentStep uploads the document to the archive unless it
// already came from there. Archive failures are logged and do not stop
// extraction.
type ArchiveDocumentStep struct {
	Archive archive.Archive
	Now     func() time.Time
}

func (s *ArchiveDocumentStep) Execute(ctx context.Context, state *ExtractionState) error {
	job := state.Job
	if s.Archive == nil || job.SourceURI != "" {
		return nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	object := archive.ObjectName(now(), job.DocumentID, job.Filename)
	uri, err := s.Archive.Upload(ctx, object, job.Data, job.MIMEType)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("object", object).Msg("failed to archive document")
		return nil
	}
	job.SourceURI = uri
	return nil
}

// Step 2: ExtractBatchStep sends the document to the model.
type ExtractBatchStep struct {
	Extractor      BatchExtractor
	DateFormatHint string
}

func (s *ExtractBatchStep) Execute(ctx context.Context, state *ExtractionState) error {
	job := state.Job
	batch, err := s.Extractor.Extract(ctx, job.Data, job.MIMEType, s.DateFormatHint)
	if err != nil {
		return err
	}
	job.Batch = batch
	return nil
}

// Step 3: SuggestAccountStep picks an account sheet for the batch. Failing to
// list accounts leaves the job without a suggestion.
type SuggestAccountStep struct {
	Store ledger.Store
}

func (s *SuggestAccountStep) Execute(ctx context.Context, state *ExtractionState) error {
	known, err := s.Store.ListAccounts(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to list accounts for suggestion")
		return nil
	}
	state.Accounts = known

	job := state.Job
	job.SuggestedAccount = accounts.Suggest(job.Batch, known)
	if job.SuggestedAccount != nil && job.AssignedAccount == "" {
		job.AssignedAccount = job.SuggestedAccount.Title
	}
	return nil
}

// ImportState holds the shared state of the dedup-then-append steps.
type ImportState struct {
	Account      string
	Transactions []domain.Transaction
	DryRun       bool

	Reference []domain.Transaction
	Result    dedup.Result
	Appended  int
}

// Step 1: LoadReferenceStep reads the account's rows and makes them the
// engine's reference set.
type LoadReferenceStep struct {
	Store  ledger.Store
	Engine *dedup.Engine
}

func (s *LoadReferenceStep) Execute(ctx context.Context, state *ImportState) error {
	ref, err := s.Store.ReadTransactions(ctx, state.Account)
	if err != nil {
		return fmt.Errorf("LoadReferenceStep: %w", err)
	}
	state.Reference = ref
	s.Engine.SetReference(ref)
	return nil
}

// Step 2: DeduplicateStep splits the incoming rows into unique and duplicate.
type DeduplicateStep struct {
	Engine *dedup.Engine
}

func (s *DeduplicateStep) Execute(ctx context.Context, state *ImportState) error {
	both := 0
	for _, tx := range state.Transactions {
		if tx.Credit != "" && tx.Debit != "" {
			both++
		}
	}
	if both > 0 {
		// Only the credit side takes part in matching for these rows.
		log := logger.FromContext(ctx)
		log.Warn().
			Str("account", state.Account).
			Int("count", both).
			Msg("transactions carry both credit and debit")
	}
	state.Result = s.Engine.FilterDuplicates(state.Transactions)
	return nil
}

// Step 3: AppendUniqueStep writes the unique rows to the account.
type AppendUniqueStep struct {
	Store ledger.Store
}

func (s *AppendUniqueStep) Execute(ctx context.Context, state *ImportState) error {
	if state.DryRun || len(state.Result.Unique) == 0 {
		return nil
	}
	if err := s.Store.AppendTransactions(ctx, state.Account, state.Result.Unique); err != nil {
		return fmt.Errorf("AppendUniqueStep: %w", err)
	}
	state.Appended = len(state.Result.Unique)
	return nil
}
