// Package pipeline runs documents through extraction and imports extracted
// batches into the ledger after deduplication.
package pipeline

import (
	"context"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

// Processor extracts one document at a time. Its HandleJob method is the
// queue's job handler.
type Processor struct {
	pipeline *Pipeline[ExtractionState]
}

// NewProcessor builds the archive, extract, suggest sequence. arc may be nil.
func NewProcessor(extractor BatchExtractor, store ledger.Store, arc archive.Archive, dateFormatHint string) *Processor {
	return &Processor{
		pipeline: NewPipeline[ExtractionState](
			&ArchiveDocumentStep{Archive: arc},
			&ExtractBatchStep{Extractor: extractor, DateFormatHint: dateFormatHint},
			&SuggestAccountStep{Store: store},
		),
	}
}

// JobFromDocument creates a job for an intake document.
func JobFromDocument(doc *intake.Document) *jobs.ExtractDocumentJob {
	return &jobs.ExtractDocumentJob{
		DocumentID: doc.ID,
		Filename:   doc.Name,
		MIMEType:   doc.MIMEType,
		Size:       doc.Size,
		SourceURI:  doc.SourceURI,
		Data:       doc.Data,
	}
}

// HandleJob extracts the job's document and stores the batch and suggested
// account on the job. Errors are tagged with the document.
func (p *Processor) HandleJob(ctx context.Context, job *jobs.ExtractDocumentJob) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("document_id", job.DocumentID).
		Str("mime_type", job.MIMEType).
		Int("size", job.Size).
		Msg("processing document")

	job.Batch = nil
	job.SuggestedAccount = nil

	state := &ExtractionState{Job: job}
	if err := p.pipeline.Execute(ctx, state); err != nil {
		return &apperror.DocumentError{DocumentID: job.DocumentID, Name: job.Filename, Err: err}
	}

	ev := log.Info().Int("transactions", len(job.Batch.Transactions))
	if job.SuggestedAccount != nil {
		ev = ev.Str("suggested_account", job.SuggestedAccount.Title)
	}
	ev.Msg("document processed")
	return nil
}
