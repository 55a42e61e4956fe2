package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"triage-copilot/config"
	"triage-copilot/embeddings"
	"triage-copilot/queue"
	"triage-copilot/worker"
)

var (
	jobsProcessedCounter prometheus.Counter
	jobsFailedCounter    prometheus.Counter
)

func init() {
	jobsProcessedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "embed_jobs_processed_total",
			Help: "Total number of embedding jobs processed successfully.",
		},
	)
	jobsFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "embed_jobs_failed_total",
			Help: "Total number of embedding jobs that failed.",
		},
	)
	prometheus.MustRegister(jobsProcessedCounter, jobsFailedCounter)
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}

	rdb := queue.NewClient(cfg)

	var provider embeddings.Provider
	if cfg.EmbeddingProvider == "deterministic" {
		provider = embeddings.NewDeterministicProvider(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	} else {
		provider = embeddings.NewHTTPProvider(cfg, logging)
	}

	w := worker.NewWorker(&worker.GormStore{DB: db}, rdb, provider, logging)
	w.JobsProcessed = jobsProcessedCounter
	w.JobsFailed = jobsFailedCounter

	// Metrics-Endpoint des Workers
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusOK)
		})
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logging.Error("Worker metrics server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal("Worker stopped with error", zap.Error(err))
	}
}
