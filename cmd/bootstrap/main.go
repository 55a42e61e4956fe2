package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"triage-copilot/config"
	"triage-copilot/embeddings"
	"triage-copilot/models"
	"triage-copilot/queue"
	"triage-copilot/services"
	"triage-copilot/worker"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: bootstrap [flags] <command> [args]

Commands:
  bootstrap                    create extension, tables and indexes
  load-data <file> [file...]   load NDJSON seed files (gzip supported)
  load-embeddings              embed all issues that have no vector yet
  all <file> [file...]         bootstrap + load-data + load-embeddings

Flags:
  -batch-size N                issues per embedding batch (default 100)
  -force                       drop existing vectors of the configured
                               model before load-embeddings
`)
	os.Exit(2)
}

func main() {
	batchSize := flag.Int("batch-size", 100, "issues per embedding batch")
	force := flag.Bool("force", false, "drop existing vectors before backfilling")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	command := flag.Arg(0)

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

	ingest := services.NewIngestService(db, rdb, logging)
	bootstrap := services.NewBootstrapService(db, rdb, ingest, provider, logging)
	store := &worker.GormStore{DB: db}
	ctx := context.Background()

	ensureSchema := func() {
		// Extension muss vor AutoMigrate existieren, sonst kennt Postgres
		// den Spaltentyp vector nicht
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
			logging.Fatal("Failed to create pgvector extension", zap.Error(err))
		}
		if err := db.AutoMigrate(&models.Issue{}, &models.Label{}, &models.IssueVector{}, &models.SimilarIssue{}); err != nil {
			logging.Fatal("Auto-migration failed", zap.Error(err))
		}
		if err := bootstrap.EnsureSchema(ctx, provider.Dimension()); err != nil {
			logging.Fatal("Schema bootstrap failed", zap.Error(err))
		}
	}
	loadData := func(files []string) {
		if len(files) == 0 {
			logging.Fatal("load-data requires at least one seed file")
		}
		total := 0
		for _, file := range files {
			count, err := bootstrap.LoadSeedFile(ctx, file)
			if err != nil {
				logging.Fatal("Seed load failed", zap.String("file", file), zap.Error(err))
			}
			total += count
		}
		logging.Info("Seed data loaded", zap.Int("issues", total))
	}
	loadEmbeddings := func() {
		if *force {
			if err := db.Where("model = ?", provider.Model()).Delete(&models.IssueVector{}).Error; err != nil {
				logging.Fatal("Dropping existing vectors failed", zap.Error(err))
			}
			logging.Info("Existing vectors dropped", zap.String("model", provider.Model()))
		}
		total, err := bootstrap.EnsureEmbeddings(ctx, *batchSize, store.SaveVector)
		if err != nil {
			logging.Fatal("Embedding backfill failed", zap.Error(err))
		}
		logging.Info("Embedding backfill completed", zap.Int("embedded", total))
	}

	switch command {
	case "bootstrap":
		ensureSchema()
	case "load-data":
		loadData(flag.Args()[1:])
	case "load-embeddings":
		loadEmbeddings()
	case "all":
		ensureSchema()
		loadData(flag.Args()[1:])
		loadEmbeddings()
	default:
		usage()
	}
}
