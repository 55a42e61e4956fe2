package services

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"triage-copilot/embeddings"
	"triage-copilot/models"
	"triage-copilot/queue"
)

// BootstrapService richtet das Schema ein, lädt Seed-Daten und füllt
// fehlende Embeddings nach. Alle Operationen sind idempotent und können bei
// jedem Start erneut laufen.
type BootstrapService struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Ingest   *IngestService
	Provider embeddings.Provider
	Logger   *zap.Logger
}

// NewBootstrapService erstellt eine neue Instanz des BootstrapService.
func NewBootstrapService(db *gorm.DB, rdb *redis.Client, ingest *IngestService, provider embeddings.Provider, logger *zap.Logger) *BootstrapService {
	return &BootstrapService{DB: db, Redis: rdb, Ingest: ingest, Provider: provider, Logger: logger}
}

// EnsureSchema legt die Teile des Schemas an, die AutoMigrate nicht kennt:
// die pgvector-Extension, die dimensionierte Embedding-Spalte und die
// generierte tsvector-Spalte mit GIN-Index für die lexikalische Suche.
func (b *BootstrapService) EnsureSchema(ctx context.Context, dimension int) error {
	db := b.DB.WithContext(ctx)
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return fmt.Errorf("pgvector extension: %w", err)
	}

	declared, err := b.VectorColumnDimension(ctx)
	if err != nil {
		return err
	}
	if declared <= 0 {
		if err := db.Exec(fmt.Sprintf(
			`ALTER TABLE issue_vectors ALTER COLUMN embedding TYPE vector(%d)`, dimension,
		)).Error; err != nil {
			return fmt.Errorf("embedding column type: %w", err)
		}
	} else if err := embeddings.CheckDimension(declared, dimension, b.Provider.Model()); err != nil {
		return err
	}

	statements := []string{
		`ALTER TABLE issues ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (to_tsvector('english', coalesce(title,'') || ' ' || coalesce(body,''))) STORED`,
		`CREATE INDEX IF NOT EXISTS idx_issues_search_vector ON issues USING GIN (search_vector)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	b.Logger.Info("Schema ensured", zap.Int("embedding_dimension", dimension))
	return nil
}

// VectorColumnDimension liest die deklarierte Breite der Embedding-Spalte
// aus dem Katalog. 0 bedeutet: Spalte existiert noch ohne feste Dimension.
func (b *BootstrapService) VectorColumnDimension(ctx context.Context) (int, error) {
	var typmod int
	err := b.DB.WithContext(ctx).Raw(`
		SELECT COALESCE(a.atttypmod, -1)
		FROM pg_attribute a
		WHERE a.attrelid = 'issue_vectors'::regclass AND a.attname = 'embedding'`,
	).Scan(&typmod).Error
	if err != nil {
		return 0, fmt.Errorf("vector column lookup: %w", err)
	}
	if typmod < 0 {
		return 0, nil
	}
	return typmod, nil
}

// seedRecord ist eine Zeile aus einer NDJSON-Seed-Datei: Quelle plus der
// rohe Tracker-Payload.
type seedRecord struct {
	Source  string                 `json:"source"`
	Payload map[string]interface{} `json:"payload"`
}

// LoadSeedFile spielt eine NDJSON-Datei (optional gzip) über den normalen
// Ingestion-Pfad ein. Gibt die Zahl der upserteten Issues zurück.
func (b *BootstrapService) LoadSeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	count := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record seedRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			b.Logger.Warn("Skipping malformed seed line",
				zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}

		var payload IssuePayload
		switch record.Source {
		case "github":
			payload, err = NormalizeGitHubIssue(record.Payload)
		case "jira":
			payload, err = NormalizeJiraIssue(record.Payload)
		default:
			b.Logger.Warn("Skipping seed line with unknown source",
				zap.String("file", path), zap.Int("line", lineNo), zap.String("source", record.Source))
			continue
		}
		if err != nil {
			b.Logger.Warn("Skipping unnormalizable seed line",
				zap.String("file", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}

		if _, err := b.Ingest.StoreIssue(ctx, payload); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	b.Logger.Info("Seed file loaded", zap.String("file", path), zap.Int("issues", count))
	return count, nil
}

// missingVectorIDs findet Issues ohne Embedding des aktuellen Modells.
func (b *BootstrapService) missingVectorIDs(ctx context.Context, limit int) ([]uint, error) {
	var ids []uint
	query := b.DB.WithContext(ctx).Model(&models.Issue{}).
		Select("issues.id").
		Joins("LEFT JOIN issue_vectors iv ON iv.issue_id = issues.id AND iv.model = ?", b.Provider.Model()).
		Where("iv.issue_id IS NULL").
		Order("issues.id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&ids).Error
	return ids, err
}

// EnqueueMissing legt für jedes Issue ohne Embedding einen Job auf die
// Queue. Läuft periodisch als Sweep gegen verlorene Jobs — die Queue ist
// ack-los, ein Crash zwischen Dequeue und Persist darf nichts dauerhaft
// verlieren.
func (b *BootstrapService) EnqueueMissing(ctx context.Context) (int, error) {
	ids, err := b.missingVectorIDs(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := queue.EnqueueEmbedJob(ctx, b.Redis, id, false); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		b.Logger.Info("Backfill sweep enqueued missing embeddings", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// EnsureEmbeddings berechnet fehlende Embeddings synchron, in Batches.
// Ein Dimensions-Mismatch zwischen Spalte und Provider bricht sofort ab.
func (b *BootstrapService) EnsureEmbeddings(ctx context.Context, batchSize int, save func(ctx context.Context, issueID uint, embedding models.Vector, model string) error) (int, error) {
	declared, err := b.VectorColumnDimension(ctx)
	if err != nil {
		return 0, err
	}
	if err := embeddings.CheckDimension(declared, b.Provider.Dimension(), b.Provider.Model()); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	total := 0
	for {
		ids, err := b.missingVectorIDs(ctx, batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		for _, id := range ids {
			var issue models.Issue
			if err := b.DB.WithContext(ctx).First(&issue, id).Error; err != nil {
				return total, err
			}
			embedding, err := b.Provider.Embed(ctx, embeddings.IssueText(issue.Title, issue.Body))
			if err != nil {
				return total, err
			}
			if err := save(ctx, id, embedding, b.Provider.Model()); err != nil {
				return total, err
			}
			total++
		}
		b.Logger.Info("Embedding backfill batch completed", zap.Int("total", total))
	}
}
