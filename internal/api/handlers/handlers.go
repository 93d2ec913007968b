package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/statement-consolidator/internal/api/middleware"
	"github.com/dvloznov/statement-consolidator/internal/apperror"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/logger"
	"github.com/dvloznov/statement-consolidator/internal/pipeline"
)

// maxUploadMemory bounds the in-memory part of a multipart upload.
const maxUploadMemory = 32 << 20

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrAccountNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrUpstreamService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DocumentsHandler handles document uploads.
type DocumentsHandler struct {
	intake    *intake.Intake
	publisher jobs.Publisher
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(in *intake.Intake, publisher jobs.Publisher) *DocumentsHandler {
	return &DocumentsHandler{intake: in, publisher: publisher}
}

// UploadDocuments handles POST /api/documents. It accepts multipart "file"
// fields or a raw body named by ?filename=, and enqueues one extraction job
// per accepted document.
func (h *DocumentsHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var (
		docs    []*intake.Document
		skipped []intake.Skipped
	)
	add := func(name string, data []byte, mimeType string) error {
		res, err := h.intake.Add(ctx, name, data, mimeType)
		if err != nil {
			if errors.Is(err, intake.ErrUnsupportedType) || errors.Is(err, intake.ErrTooLarge) {
				skipped = append(skipped, intake.Skipped{Name: name, Reason: err.Error()})
				return nil
			}
			return err
		}
		docs = append(docs, res.Documents...)
		skipped = append(skipped, res.Skipped...)
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			middleware.WriteError(w, http.StatusBadRequest, "No file field in form")
			return
		}
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
				return
			}
			if err := add(filepath.Base(fh.Filename), data, fh.Header.Get("Content-Type")); err != nil {
				log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to read document")
				middleware.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	} else {
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			middleware.WriteError(w, http.StatusBadRequest, "filename is required")
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Failed to read body")
			return
		}
		if err := add(filepath.Base(filename), data, mediaType); err != nil {
			log.Error().Err(err).Str("filename", filename).Msg("Failed to read document")
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if len(docs) == 0 {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "No supported documents in upload",
			"skipped": skipped,
		})
		return
	}

	queued := make([]*jobs.ExtractDocumentJob, 0, len(docs))
	for _, doc := range docs {
		job := pipeline.JobFromDocument(doc)
		if err := h.publisher.PublishExtractDocument(ctx, job); err != nil {
			log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to enqueue extraction job")
			middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue extraction job")
			return
		}
		log.Info().Str("job_id", job.JobID).Str("filename", doc.Name).Msg("Extraction job enqueued")
		queued = append(queued, job)
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobs":    queued,
		"skipped": skipped,
		"count":   len(queued),
	})
}

// JobsHandler handles job review and import endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	importer  *pipeline.Importer
	ledger    ledger.Store
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher, importer *pipeline.Importer, ledger ledger.Store) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
		importer:  importer,
		ledger:    ledger,
	}
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		DocumentID: query.Get("document_id"),
		Status:     jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// RetryJob handles POST /api/jobs/{id}/retry. Only failed jobs are resubmitted.
func (h *JobsHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusError {
		middleware.WriteError(w, http.StatusConflict, fmt.Sprintf("Job is %s, only failed jobs can be retried", job.Status))
		return
	}

	if err := h.publisher.PublishExtractDocument(r.Context(), job); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to resubmit job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to resubmit job")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// AssignAccount handles PUT /api/jobs/{id}/account
func (h *JobsHandler) AssignAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Account = strings.TrimSpace(req.Account)
	if req.Account == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account is required")
		return
	}

	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	known, err := h.ledger.ListAccounts(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, statusFor(err), "Failed to list accounts")
		return
	}
	if !hasAccount(known, req.Account) {
		middleware.WriteError(w, http.StatusNotFound, "Account not found")
		return
	}

	updated, err := h.store.UpdateJob(ctx, job.JobID, func(stored *jobs.ExtractDocumentJob) error {
		stored.AssignedAccount = req.Account
		return nil
	})
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, updated)
}

// PreviewJob handles GET /api/jobs/{id}/preview. The batch is deduplicated
// against ?account= or the job's assigned account.
func (h *JobsHandler) PreviewJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusDone || job.Batch == nil {
		middleware.WriteError(w, http.StatusConflict, fmt.Sprintf("Job is %s, no batch to preview", job.Status))
		return
	}

	account := r.URL.Query().Get("account")
	if account == "" {
		account = job.AssignedAccount
	}
	if account == "" {
		middleware.WriteError(w, http.StatusBadRequest, "No account assigned")
		return
	}

	report, err := h.importer.Preview(r.Context(), account, job.Batch.Transactions)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("account", account).Msg("Failed to preview import")
		middleware.WriteError(w, statusFor(err), apperror.UserMessage(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// Import handles POST /api/import. An empty job_ids list imports every done
// job that has an account assigned and has not been imported yet.
func (h *JobsHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		JobIDs []string `json:"job_ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var selected []*jobs.ExtractDocumentJob
	outcomes := []pipeline.Outcome{}
	if len(req.JobIDs) == 0 {
		done, err := h.store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusDone})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
			return
		}
		for _, job := range done {
			if job.Importable() && job.ImportedAt == nil {
				selected = append(selected, job)
			}
		}
	} else {
		for _, id := range req.JobIDs {
			job, err := h.store.GetJob(ctx, id)
			if err != nil {
				outcomes = append(outcomes, pipeline.Outcome{JobID: id, Status: pipeline.OutcomeFailed, Error: "job not found"})
				continue
			}
			selected = append(selected, job)
		}
	}

	outcomes = append(outcomes, h.importer.ImportJobs(ctx, selected)...)
	for _, job := range selected {
		if job.ImportedAt != nil {
			importedAt := job.ImportedAt
			_, err := h.store.UpdateJob(ctx, job.JobID, func(stored *jobs.ExtractDocumentJob) error {
				stored.ImportedAt = importedAt
				return nil
			})
			if err != nil {
				log := logger.FromContext(ctx)
				log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job")
			}
		}
	}

	counts := map[pipeline.OutcomeStatus]int{}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": outcomes,
		"imported": counts[pipeline.OutcomeImported],
		"skipped":  counts[pipeline.OutcomeSkipped],
		"failed":   counts[pipeline.OutcomeFailed],
	})
}

func (h *JobsHandler) loadJob(w http.ResponseWriter, r *http.Request) (*jobs.ExtractDocumentJob, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
		return nil, false
	}
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return job, true
}

func hasAccount(known []domain.AccountSheet, title string) bool {
	for _, a := range known {
		if a.Title == title {
			return true
		}
	}
	return false
}

// AccountsHandler handles account sheet endpoints.
type AccountsHandler struct {
	ledger ledger.Store
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(ledger ledger.Store) *AccountsHandler {
	return &AccountsHandler{ledger: ledger}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, statusFor(err), "Failed to list accounts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	account, err := h.ledger.CreateAccount(r.Context(), req.Name)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to create account")
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, account)
}
