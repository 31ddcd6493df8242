package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"varreg/internal/contig"
	"varreg/internal/fasta"
	"varreg/internal/platform/config"
	"varreg/internal/platform/logger"
	"varreg/internal/platform/metrics"
	"varreg/internal/platform/postgres"
	platformredis "varreg/internal/platform/redis"
	"varreg/internal/release"
	"varreg/internal/release/blob"
	"varreg/internal/variant/models"
	"varreg/internal/variant/store"
)

// The release job writes the deterministic variant report for one assembly:
// active clustered variants with their submissions, denormalized and sorted,
// optionally uploaded to a blob store afterwards.
func main() {
	jobID := flag.String("job-id", "", "resume a previous run's header state (default: new run)")
	bucket := flag.String("s3-bucket", "", "upload the finished report to this S3 bucket")
	blobDir := flag.String("blob-dir", "", "copy the finished report under this local directory")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := logger.NewCLI(level)
	cfg := config.JobFromEnv()

	if err := run(cfg, *jobID, *bucket, *blobDir, log); err != nil {
		log.Error("release job failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Job, jobID, bucket, blobDir string, log *slog.Logger) error {
	for name, v := range map[string]string{
		"VARREG_ASSEMBLY":        cfg.AssemblyAccession,
		"VARREG_POSTGRES_DSN":    cfg.PostgresDSN,
		"VARREG_ASSEMBLY_REPORT": cfg.AssemblyReport,
		"VARREG_FASTA":           cfg.FastaPath,
		"VARREG_OUTPUT_REPORT":   cfg.OutputReport,
	} {
		if v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	naming, err := contig.ParseNamingStandard(cfg.ContigNaming)
	if err != nil {
		return err
	}

	reportFile, err := os.Open(cfg.AssemblyReport)
	if err != nil {
		return fmt.Errorf("open assembly report: %w", err)
	}
	mapping, err := contig.NewMapping(reportFile, log)
	reportFile.Close()
	if err != nil {
		return err
	}

	indexPath := cfg.FastaIndexPath
	if indexPath == "" {
		indexPath = cfg.FastaPath + ".fai"
	}
	fa, err := fasta.OpenIndexed(cfg.FastaPath, indexPath)
	if err != nil {
		return err
	}
	defer fa.Close()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	clusteredStore := store.NewPostgresClusteredStore(db)
	submittedStore := store.NewPostgresSubmittedStore(db)

	var states release.JobStateStore = release.NewInMemoryJobStateStore()
	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		states = release.NewRedisJobStateStore(redisClient.Client)
	}

	m := metrics.New()
	writer := release.NewReportWriter(cfg.OutputReport, mapping, naming, fa, states, jobID, m, log)

	clustered, err := clusteredStore.ListByAssembly(ctx, cfg.AssemblyAccession)
	if err != nil {
		return err
	}
	// The whole release is written in one batch so the writer's sort covers
	// the full report, not just a chunk.
	var all []models.SubmittedVariant
	for _, cv := range clustered {
		if cv.Status != models.StatusActive {
			continue
		}
		subs, err := submittedStore.FindByClusteredAccession(ctx, cv.Accession)
		if err != nil {
			return err
		}
		all = append(all, subs...)
	}
	if err := writer.Write(ctx, all); err != nil {
		return err
	}
	if err := writer.Close(ctx); err != nil {
		return err
	}

	var artifacts blob.Store
	switch {
	case bucket != "":
		artifacts, err = blob.NewS3Store(ctx, bucket)
		if err != nil {
			return err
		}
	case blobDir != "":
		artifacts = blob.NewFSStore(blobDir)
	}
	if artifacts != nil {
		f, err := os.Open(cfg.OutputReport)
		if err != nil {
			return fmt.Errorf("open finished report: %w", err)
		}
		defer f.Close()
		key := cfg.AssemblyAccession + "/" + filepath.Base(cfg.OutputReport)
		if err := artifacts.Put(ctx, key, f); err != nil {
			return err
		}
		log.Info("report archived", "key", key)
	}
	return nil
}
