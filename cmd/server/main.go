package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"varreg/internal/operation"
	"varreg/internal/platform/config"
	"varreg/internal/platform/httpserver"
	"varreg/internal/platform/logger"
	"varreg/internal/platform/postgres"
	httptransport "varreg/internal/transport/http"
	"varreg/internal/variant/service"
	"varreg/internal/variant/store"
)

// main wires dependencies and owns the server lifecycle; registry semantics
// live in the internal packages. Without a Postgres DSN the server runs on
// in-memory stores, which is enough for local development.
func main() {
	cfg := config.ServerFromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		clusteredStore store.ClusteredStore
		submittedStore store.SubmittedStore
		operationStore operation.Store
		source         store.AccessionSource
	)
	if cfg.PostgresDSN != "" {
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
		clusteredStore = store.NewPostgresClusteredStore(db)
		submittedStore = store.NewPostgresSubmittedStore(db)
		operationStore = operation.NewPostgresStore(db)
		source = store.NewPostgresAccessionSource(db)
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		clusteredStore = store.NewInMemoryClusteredStore()
		submittedStore = store.NewInMemorySubmittedStore()
		operationStore = operation.NewInMemoryStore()
		source = store.NewInMemoryAccessionSource(5000000000)
	}

	svc := service.New(clusteredStore, submittedStore, operationStore, source, log)
	router := httptransport.NewRouter(httptransport.NewHandler(svc, log))

	apiServer := httpserver.New(cfg.Addr, router)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := httpserver.New(cfg.MetricsAddr, metricsMux)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", cfg.Addr)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := httpserver.Shutdown(apiServer, 10*time.Second); err != nil {
			log.Error("api shutdown", "error", err)
		}
		if err := httpserver.Shutdown(metricsServer, 10*time.Second); err != nil {
			log.Error("metrics shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
