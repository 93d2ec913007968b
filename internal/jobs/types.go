package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeExtractDocument represents a statement extraction job.
	JobTypeExtractDocument JobType = "extract_document"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates the document is being extracted.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDone indicates extraction succeeded and the batch is ready to review.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates extraction failed.
	JobStatusError JobStatus = "error"
)

// ExtractDocumentJob tracks one uploaded statement from extraction to import.
type ExtractDocumentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// DocumentID is the intake ID of the document.
	DocumentID string `json:"document_id"`

	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`

	// SourceURI is the gs:// URI of the archived copy, if any.
	SourceURI string `json:"source_uri,omitempty"`

	// Data is the document content. It stays in memory only.
	Data []byte `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains a user-facing message if the job failed.
	Error string `json:"error,omitempty"`

	// Batch is the extraction result once the job is done.
	Batch *domain.ExtractedBatch `json:"batch,omitempty"`

	// SuggestedAccount is the account picked by the suggestion rules, if any.
	SuggestedAccount *domain.AccountSheet `json:"suggested_account,omitempty"`

	// AssignedAccount is the account title chosen for import.
	AssignedAccount string `json:"assigned_account,omitempty"`

	// ImportedAt is set once the batch has been written to the ledger.
	ImportedAt *time.Time `json:"imported_at,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ExtractDocumentJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ExtractDocumentJob) GetType() JobType {
	return JobTypeExtractDocument
}

// GetStatus implements the Job interface.
func (j *ExtractDocumentJob) GetStatus() JobStatus {
	return j.Status
}

// Importable reports whether the job has a batch and an account to import into.
func (j *ExtractDocumentJob) Importable() bool {
	return j.Status == JobStatusDone && j.Batch != nil && j.AssignedAccount != ""
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishExtractDocument publishes a document extraction job.
	PublishExtractDocument(ctx context.Context, job *ExtractDocumentJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. The handler fills in the job's result
// fields; a returned error marks the job failed. Jobs are not retried
// automatically.
type JobHandler func(ctx context.Context, job *ExtractDocumentJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ExtractDocumentJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ExtractDocumentJob, error)

	// ListJobs retrieves jobs in creation order with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ExtractDocumentJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error

	// UpdateJob applies fn to the stored job atomically. A non-nil error from
	// fn leaves the job unchanged.
	UpdateJob(ctx context.Context, jobID string, fn func(job *ExtractDocumentJob) error) (*ExtractDocumentJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// DocumentID filters jobs by document ID.
	DocumentID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
