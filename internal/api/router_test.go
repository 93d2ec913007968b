package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-consolidator/internal/dedup"
	"github.com/dvloznov/statement-consolidator/internal/domain"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/jobs/inmemory"
	"github.com/dvloznov/statement-consolidator/internal/ledger/memory"
	"github.com/dvloznov/statement-consolidator/internal/logger"
	"github.com/dvloznov/statement-consolidator/internal/pipeline"
)

type testServer struct {
	handler http.Handler
	jobs    *inmemory.Store
	ledger  *memory.Store
}

func newTestServer(t *testing.T, extract func(ctx context.Context, data []byte, mimeType, hint string) (*domain.ExtractedBatch, error)) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ledgerStore := memory.New("@")
	ledgerStore.Seed("@GrabPay", domain.Transaction{Date: "2024-01-05", Description: "Grab Ride", Debit: "12.50"})
	ledgerStore.Seed("Summary")

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, jobStore)
	proc := pipeline.NewProcessor(&pipeline.MockExtractor{ExtractFunc: extract}, ledgerStore, nil, "")
	require.NoError(t, queue.Start(ctx, proc.HandleJob))
	t.Cleanup(func() { _ = queue.Stop(context.Background()) })

	log := logger.NewWithWriter(&bytes.Buffer{})
	h := NewHandler(Deps{
		Intake:    intake.New(intake.Options{}, nil),
		Publisher: queue,
		JobStore:  jobStore,
		Importer:  pipeline.NewImporter(ledgerStore, dedup.New()),
		Ledger:    ledgerStore,
	}, log)

	return &testServer{handler: h, jobs: jobStore, ledger: ledgerStore}
}

func (s *testServer) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) waitStatus(t *testing.T, id string, want jobs.JobStatus) *jobs.ExtractDocumentJob {
	t.Helper()
	var job *jobs.ExtractDocumentJob
	require.Eventually(t, func() bool {
		var err error
		job, err = s.jobs.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func grabBatch() *domain.ExtractedBatch {
	return &domain.ExtractedBatch{
		AccountType: domain.AccountTypeEWallet,
		AccountName: "GrabPay",
		Transactions: []domain.Transaction{
			{Date: "2024-01-05", Description: "GRAB ride", Debit: "12.5"},
			{Date: "2024-01-07", Description: "Top up", Credit: "50"},
		},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func uploadedJobIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp struct {
		Jobs []jobs.ExtractDocumentJob `json:"jobs"`
	}
	decode(t, rec, &resp)
	ids := make([]string, len(resp.Jobs))
	for i, j := range resp.Jobs {
		ids[i] = j.JobID
	}
	return ids
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestUploadReviewImportFlow(t *testing.T) {
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return grabBatch(), nil
	})

	rec := s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ids := uploadedJobIDs(t, rec)
	require.Len(t, ids, 1)
	id := ids[0]

	job := s.waitStatus(t, id, jobs.JobStatusDone)
	require.NotNil(t, job.SuggestedAccount)
	assert.Equal(t, "@GrabPay", job.AssignedAccount)

	rec = s.do(t, http.MethodGet, "/api/jobs/"+id+"/preview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report pipeline.Report
	decode(t, rec, &report)
	assert.Len(t, report.Unique, 1)
	assert.Len(t, report.Duplicates, 1)
	assert.Equal(t, 50.0, report.Stats.DuplicateRate)

	rec = s.do(t, http.MethodPost, "/api/import", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Outcomes []pipeline.Outcome `json:"outcomes"`
		Imported int                `json:"imported"`
	}
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 1, result.Outcomes[0].Appended)

	rows, err := s.ledger.ReadTransactions(context.Background(), "@GrabPay")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	stored, err := s.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, stored.ImportedAt)

	// a second import-all finds nothing left to do
	rec = s.do(t, http.MethodPost, "/api/import", []byte(`{}`), "application/json")
	decode(t, rec, &result)
	assert.Empty(t, result.Outcomes)
}

func TestUpload_Multipart(t *testing.T) {
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return grabBatch(), nil
	})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range []string{"a.pdf", "b.png", "notes.txt"} {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("content"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	rec := s.do(t, http.MethodPost, "/api/documents", body.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Count   int              `json:"count"`
		Skipped []intake.Skipped `json:"skipped"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "notes.txt", resp.Skipped[0].Name)
}

func TestUpload_Rejected(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/documents", []byte("x"), "application/pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/documents?filename=notes.txt", []byte("hello"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes.txt")
}

func TestFailedJobAndRetry(t *testing.T) {
	calls := 0
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream status 429")
		}
		return grabBatch(), nil
	})

	rec := s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := uploadedJobIDs(t, rec)[0]

	failed := s.waitStatus(t, id, jobs.JobStatusError)
	assert.Contains(t, failed.Error, "Quota Exceeded")

	rec = s.do(t, http.MethodGet, "/api/jobs/"+id+"/preview", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	s.waitStatus(t, id, jobs.JobStatusDone)

	rec = s.do(t, http.MethodPost, "/api/jobs/"+id+"/retry", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAssignAccount(t *testing.T) {
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return &domain.ExtractedBatch{AccountType: domain.AccountTypeUnknown, AccountName: domain.DefaultAccountName}, nil
	})

	rec := s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF"), "")
	id := uploadedJobIDs(t, rec)[0]
	job := s.waitStatus(t, id, jobs.JobStatusDone)
	assert.Nil(t, job.SuggestedAccount)
	assert.Empty(t, job.AssignedAccount)

	rec = s.do(t, http.MethodGet, "/api/jobs/"+id+"/preview", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/jobs/"+id+"/account", []byte(`{"account":"@Nope"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/jobs/"+id+"/account", []byte(`{"account":"@GrabPay"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := s.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "@GrabPay", stored.AssignedAccount)
}

func TestJobsListAndGet(t *testing.T) {
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return grabBatch(), nil
	})

	rec := s.do(t, http.MethodGet, "/api/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF"), "")
	id := uploadedJobIDs(t, rec)[0]
	s.waitStatus(t, id, jobs.JobStatusDone)

	rec = s.do(t, http.MethodGet, "/api/jobs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = s.do(t, http.MethodGet, "/api/jobs/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"done"`)
	assert.NotContains(t, rec.Body.String(), "JVBER")
}

func TestImport_ExplicitIDs(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/import", []byte(`{"job_ids":["nope"]}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Outcomes []pipeline.Outcome `json:"outcomes"`
		Failed   int                `json:"failed"`
	}
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "job not found", result.Outcomes[0].Error)

	rec = s.do(t, http.MethodPost, "/api/import", []byte(`{bad`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccounts(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/accounts", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Accounts []domain.AccountSheet `json:"accounts"`
		Count    int                   `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "GrabPay", list.Accounts[0].DisplayName)

	rec = s.do(t, http.MethodPost, "/api/accounts", []byte(`{"name":"Maybank"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "@Maybank")

	rec = s.do(t, http.MethodPost, "/api/accounts", []byte(`{"name":"  "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Contains(t, strings.Join(s.ledger.Titles(), ","), "@Maybank")
}

func TestUpload_ManyDocuments(t *testing.T) {
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		return grabBatch(), nil
	})

	var ids []string
	for i := 0; i < 20; i++ {
		rec := s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF-1.4"), "application/pdf")
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		var resp struct {
			Jobs []jobs.ExtractDocumentJob `json:"jobs"`
		}
		decode(t, rec, &resp)
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, jobs.JobStatusPending, resp.Jobs[0].Status)
		ids = append(ids, resp.Jobs[0].JobID)
	}

	for _, id := range ids {
		job := s.waitStatus(t, id, jobs.JobStatusDone)
		assert.Equal(t, "@GrabPay", job.AssignedAccount)
	}
}

func TestAssignAccount_WhileProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestServer(t, func(context.Context, []byte, string, string) (*domain.ExtractedBatch, error) {
		close(started)
		<-release
		return grabBatch(), nil
	})
	s.ledger.Seed("@Maybank")

	rec := s.do(t, http.MethodPost, "/api/documents?filename=jan.pdf", []byte("%PDF"), "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := uploadedJobIDs(t, rec)[0]

	<-started
	rec = s.do(t, http.MethodPut, "/api/jobs/"+id+"/account", []byte(`{"account":"@Maybank"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	close(release)

	job := s.waitStatus(t, id, jobs.JobStatusDone)
	require.NotNil(t, job.SuggestedAccount)
	assert.Equal(t, "@GrabPay", job.SuggestedAccount.Title)
	assert.Equal(t, "@Maybank", job.AssignedAccount)
}
