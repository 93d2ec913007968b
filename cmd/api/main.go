package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/statement-consolidator/internal/api"
	"github.com/dvloznov/statement-consolidator/internal/app"
	"github.com/dvloznov/statement-consolidator/internal/config"
	"github.com/dvloznov/statement-consolidator/internal/jobs/inmemory"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

func main() {
	var (
		configFile = flag.String("config", "", "Config file (default ./config.yaml)")
		port       = flag.Int("port", 0, "HTTP server port (overrides server.port)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configFile)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.NewFromOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire application")
	}
	defer a.Close()

	if err := a.EnableExtraction(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction service")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Server.QueueBufferSize, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Msg("Starting extraction worker")
	if err := jobQueue.Start(workerCtx, a.Processor.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start extraction worker")
	}

	handler := api.NewHandler(api.Deps{
		Intake:    a.Intake,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Importer:  a.Importer,
		Ledger:    a.Ledger,

		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Storage.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for the in-flight extraction
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
