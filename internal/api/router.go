// Package api assembles the HTTP routes and middleware of the review server.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-consolidator/internal/api/handlers"
	"github.com/dvloznov/statement-consolidator/internal/api/middleware"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/jobs"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/pipeline"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Intake    *intake.Intake
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Importer  *pipeline.Importer
	Ledger    ledger.Store

	// AllowedOrigins lists the origins CORS admits. "*" admits any.
	AllowedOrigins []string
}

// NewHandler registers every route and wraps the mux in middleware.
func NewHandler(deps Deps, log zerolog.Logger) http.Handler {
	documentsHandler := handlers.NewDocumentsHandler(deps.Intake, deps.Publisher)
	jobsHandler := handlers.NewJobsHandler(deps.JobStore, deps.Publisher, deps.Importer, deps.Ledger)
	accountsHandler := handlers.NewAccountsHandler(deps.Ledger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/documents", documentsHandler.UploadDocuments)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry", jobsHandler.RetryJob)
	mux.HandleFunc("PUT /api/jobs/{id}/account", jobsHandler.AssignAccount)
	mux.HandleFunc("GET /api/jobs/{id}/preview", jobsHandler.PreviewJob)
	mux.HandleFunc("POST /api/import", jobsHandler.Import)

	mux.HandleFunc("GET /api/accounts", accountsHandler.ListAccounts)
	mux.HandleFunc("POST /api/accounts", accountsHandler.CreateAccount)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.RequestID(
		middleware.Logger(log)(
			middleware.Recovery(
				middleware.CORS(deps.AllowedOrigins)(mux),
			),
		),
	)
}
