package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/dedup"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// Report is the outcome of deduplicating a batch against one account.
type Report struct {
	Account    string               `json:"account"`
	Unique     []domain.Transaction `json:"unique"`
	Duplicates []dedup.Duplicate    `json:"duplicates"`
	Stats      dedup.Stats          `json:"stats"`
	Appended   int                  `json:"appended"`
}

// OutcomeStatus classifies a per-job import result.
type OutcomeStatus string

const (
	OutcomeImported OutcomeStatus = "imported"
	OutcomeSkipped  OutcomeStatus = "skipped"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Outcome reports what happened to one job during a batch import.
type Outcome struct {
	JobID      string        `json:"job_id"`
	Filename   string        `json:"filename"`
	Account    string        `json:"account,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Appended   int           `json:"appended"`
	Duplicates int           `json:"duplicates"`
	Error      string        `json:"error,omitempty"`
}

// Importer owns the dedup engine. Calls are serialised because the engine's
// reference set belongs to one account at a time.
type Importer struct {
	mu     sync.Mutex
	store  ledger.Store
	engine *dedup.Engine
}

// NewImporter creates an importer writing to store.
func NewImporter(store ledger.Store, engine *dedup.Engine) *Importer {
	return &Importer{store: store, engine: engine}
}

func (im *Importer) run(ctx context.Context, account string, txs []domain.Transaction, dryRun bool) (*Report, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	state := &ImportState{Account: account, Transactions: txs, DryRun: dryRun}
	p := NewPipeline[ImportState](
		&LoadReferenceStep{Store: im.store, Engine: im.engine},
		&DeduplicateStep{Engine: im.engine},
		&AppendUniqueStep{Store: im.store},
	)
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}

	report := &Report{
		Account:    account,
		Unique:     state.Result.Unique,
		Duplicates: state.Result.Duplicates,
		Stats:      dedup.StatsOf(state.Result),
		Appended:   state.Appended,
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("account", account).
		Int("total", report.Stats.Total).
		Int("unique", report.Stats.Unique).
		Int("duplicates", report.Stats.Duplicates).
		Int("appended", report.Appended).
		Bool("dry_run", dryRun).
		Msg("deduplicated batch")
	return report, nil
}

// Preview deduplicates txs against account without writing anything.
func (im *Importer) Preview(ctx context.Context, account string, txs []domain.Transaction) (*Report, error) {
	return im.run(ctx, account, txs, true)
}

// Import deduplicates txs against account and appends the unique rows.
func (im *Importer) Import(ctx context.Context, account string, txs []domain.Transaction) (*Report, error) {
	return im.run(ctx, account, txs, false)
}

// ImportJobs imports every importable job in order. A failure is recorded in
// that job's outcome and the remaining jobs still run. Imported jobs get
// ImportedAt set.
func (im *Importer) ImportJobs(ctx context.Context, js []*jobs.ExtractDocumentJob) []Outcome {
	log := logger.FromContext(ctx)
	outcomes := make([]Outcome, 0, len(js))

	for _, job := range js {
		out := Outcome{JobID: job.JobID, Filename: job.Filename, Account: job.AssignedAccount}
		if !job.Importable() {
			out.Status = OutcomeSkipped
			out.Error = notImportableReason(job)
			outcomes = append(outcomes, out)
			continue
		}

		report, err := im.Import(ctx, job.AssignedAccount, job.Batch.Transactions)
		switch {
		case err != nil:
			out.Status = OutcomeFailed
			out.Error = apperror.UserMessage(err)
			log.Error().Err(err).Str("job_id", job.JobID).Msg("import failed")
		case report.Appended == 0:
			out.Status = OutcomeSkipped
			out.Duplicates = report.Stats.Duplicates
			out.Error = "no new transactions"
		default:
			out.Status = OutcomeImported
			out.Appended = report.Appended
			out.Duplicates = report.Stats.Duplicates
			now := time.Now()
			job.ImportedAt = &now
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func notImportableReason(job *jobs.ExtractDocumentJob) string {
	switch {
	case job.Status != jobs.JobStatusDone:
		return fmt.Sprintf("job is %s", job.Status)
	case job.AssignedAccount == "":
		return "no account assigned"
	default:
		return "no extracted batch"
	}
}
