package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"varreg/internal/clustering"
	"varreg/internal/operation"
	"varreg/internal/platform/config"
	"varreg/internal/platform/logger"
	"varreg/internal/platform/metrics"
	"varreg/internal/platform/postgres"
	"varreg/internal/variant/store"
)

// The clustering job applies the pending merge/split candidates for one
// assembly and deprecates accessions left without submissions.
func main() {
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.NewCLI(level)
	cfg := config.JobFromEnv()

	if cfg.AssemblyAccession == "" {
		log.Error("VARREG_ASSEMBLY is required")
		os.Exit(1)
	}
	if cfg.PostgresDSN == "" {
		log.Error("VARREG_POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Error("apply registry schema", "error", err)
		os.Exit(1)
	}
	if err := operation.EnsureSchema(ctx, db); err != nil {
		log.Error("apply operation schema", "error", err)
		os.Exit(1)
	}

	clusteredStore := store.NewPostgresClusteredStore(db)
	submittedStore := store.NewPostgresSubmittedStore(db)
	operationStore := operation.NewPostgresStore(db)
	source := store.NewPostgresAccessionSource(db)

	var feed operation.Sink = operation.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := operation.NewPublisher(cfg.KafkaBrokers, cfg.OperationTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		feed = publisher
	}

	m := metrics.New()
	merger := clustering.NewMerger(clusteredStore, submittedStore, operationStore, feed, m, log)
	splitter := clustering.NewSplitter(clusteredStore, submittedStore, source, operationStore, feed, m, log)
	deprecator := clustering.NewDeprecator(clusteredStore, submittedStore, operationStore, feed, m, log)

	job := clustering.NewJob(cfg.AssemblyAccession, cfg.ChunkSize,
		clusteredStore, submittedStore, operationStore, merger, splitter, deprecator, log)
	if err := job.Run(ctx); err != nil {
		log.Error("clustering job failed", "error", err)
		os.Exit(1)
	}
}
