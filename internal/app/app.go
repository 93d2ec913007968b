// Package app builds the collaborators shared by the API server and the CLI
// from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/config"
	"github.com/dvloznov/statement-consolidator/internal/dedup"
	"github.com/dvloznov/statement-consolidator/internal/extraction"
	"github.com/dvloznov/statement-consolidator/internal/intake"
	"github.com/dvloznov/statement-consolidator/internal/ledger"
	"github.com/dvloznov/statement-consolidator/internal/ledger/bigquery"
	"github.com/dvloznov/statement-consolidator/internal/ledger/csvdir"
	"github.com/dvloznov/statement-consolidator/internal/ledger/memory"
	"github.com/dvloznov/statement-consolidator/internal/ledger/notion"
	"github.com/dvloznov/statement-consolidator/internal/ledger/sheets"
	"github.com/dvloznov/statement-consolidator/internal/ledger/workbook"
	"github.com/dvloznov/statement-consolidator/internal/pipeline"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Ledger   ledger.Store
	Archive  archive.Archive
	Intake   *intake.Intake
	Importer *pipeline.Importer

	// Set by EnableExtraction.
	Extractor *extraction.Extractor
	Processor *pipeline.Processor

	closers []func() error
}

// New wires the ledger, the optional archive, intake and the importer.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	store, err := NewLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Ledger = store
	a.closers = append(a.closers, store.Close)

	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, cfg.Archive.Bucket)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Archive = gcs
		a.closers = append(a.closers, gcs.Close)
	}

	a.Intake = intake.New(intake.Options{
		MaxFileSize:   cfg.Intake.MaxFileSize,
		AcceptedTypes: cfg.Intake.AcceptedTypes,
	}, a.Archive)
	a.Importer = pipeline.NewImporter(store, dedup.New(dedup.WithFuzzyThreshold(cfg.Dedup.FuzzyThreshold)))

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("archive", a.Archive != nil).
		Msg("application wired")
	return a, nil
}

// EnableExtraction creates the model service, the extractor and the
// document processor. It fails when the provider's API key is missing.
func (a *App) EnableExtraction(ctx context.Context) error {
	svc, err := NewService(ctx, a.Config)
	if err != nil {
		return err
	}

	cfg := a.Config
	a.Extractor = extraction.NewExtractor(svc, extraction.Options{
		MaxAttempts:    cfg.AI.MaxAttempts,
		Transport:      extraction.ParseTransport(cfg.AI.Transport),
		RepairAttempts: cfg.Repair.MaxAttempts,
		Limiter:        NewLimiter(cfg.AI.RequestsPerMinute),
	})
	a.Processor = pipeline.NewProcessor(a.Extractor, a.Ledger, a.Archive, cfg.AI.DateFormatHint)
	return nil
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLedger opens the configured storage backend.
func NewLedger(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	st := cfg.Storage
	marker := st.AccountMarker

	switch st.Backend {
	case config.BackendMemory:
		return memory.New(marker), nil
	case config.BackendWorkbook:
		return workbook.Open(st.Workbook.Path, marker)
	case config.BackendCSV:
		return csvdir.Open(st.CSV.Directory, marker)
	case config.BackendSheets:
		return sheets.New(ctx, sheets.Config{
			Spreadsheet:     st.Sheets.SpreadsheetID,
			CredentialsFile: st.Sheets.CredentialsFile,
			APIKey:          st.Sheets.APIKey,
			Marker:          marker,
		})
	case config.BackendBigQuery:
		store, err := bigquery.New(ctx, st.BigQuery.ProjectID, st.BigQuery.Dataset, marker)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureTables(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendNotion:
		if st.Notion.Token == "" || st.Notion.DatabaseID == "" {
			return nil, fmt.Errorf("NewLedger: notion backend needs storage.notion.token and storage.notion.database_id")
		}
		return notion.New(notion.NewClient(st.Notion.Token), st.Notion.DatabaseID, marker), nil
	default:
		return nil, fmt.Errorf("NewLedger: unknown storage backend %q", st.Backend)
	}
}

// NewService creates the configured model service.
func NewService(ctx context.Context, cfg *config.Config) (extraction.Service, error) {
	switch cfg.AI.Provider {
	case config.ProviderGemini:
		return extraction.NewGeminiService(ctx, extraction.GeminiConfig{
			APIKey:          cfg.AI.APIKey,
			Model:           cfg.AI.Model,
			Temperature:     cfg.AI.Temperature,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
		})
	case config.ProviderAnthropic:
		return extraction.NewAnthropicService(extraction.AnthropicConfig{
			APIKey:    cfg.AI.AnthropicAPIKey,
			Model:     cfg.AI.Model,
			MaxTokens: int64(cfg.AI.MaxOutputTokens),
		})
	default:
		return nil, fmt.Errorf("NewService: unknown provider %q", cfg.AI.Provider)
	}
}

// NewLimiter spaces calls rpm per minute. Zero or less means no limit.
func NewLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}
