package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"triage-copilot/embeddings"
	"triage-copilot/models"
	"triage-copilot/queue"
)

// neighborCount ist die Kantenzahl pro Issue im Similar-Cache.
const neighborCount = 5

// Store kapselt die Persistenz des Workers, damit ProcessJob ohne laufende
// Datenbank testbar bleibt.
type Store interface {
	FindIssue(ctx context.Context, issueID uint) (*models.Issue, error)
	HasVector(ctx context.Context, issueID uint, model string) (bool, error)
	SaveVector(ctx context.Context, issueID uint, embedding models.Vector, model string) error
}

// GormStore ist die produktive Store-Implementierung auf GORM/Postgres.
type GormStore struct {
	DB *gorm.DB
}

// FindIssue lädt ein Issue; nil ohne Fehler, wenn es nicht (mehr) existiert.
func (s *GormStore) FindIssue(ctx context.Context, issueID uint) (*models.Issue, error) {
	var issue models.Issue
	err := s.DB.WithContext(ctx).First(&issue, issueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// HasVector prüft, ob für das Issue bereits ein Vektor dieses Modells liegt.
func (s *GormStore) HasVector(ctx context.Context, issueID uint, model string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.IssueVector{}).
		Where("issue_id = ? AND model = ?", issueID, model).
		Count(&count).Error
	return count > 0, err
}

// SaveVector upsertet das Embedding und ersetzt die Top-K-Nachbarkanten in
// einer Transaktion. Das Konfliktziel ist issue_id allein, damit ein
// Modellwechsel den alten Vektor überschreibt statt zu duplizieren.
func (s *GormStore) SaveVector(ctx context.Context, issueID uint, embedding models.Vector, model string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vector := models.IssueVector{
			IssueID:   issueID,
			Embedding: embedding,
			Model:     model,
			UpdatedAt: time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issue_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "model", "updated_at"}),
		}).Create(&vector).Error; err != nil {
			return err
		}

		type neighborRow struct {
			NeighborID uint
			Distance   float64
		}
		var neighbors []neighborRow
		if err := tx.Raw(`
			SELECT iv.issue_id AS neighbor_id, iv.embedding <-> ?::vector AS distance
			FROM issue_vectors iv
			WHERE iv.model = ? AND iv.issue_id != ?
			ORDER BY iv.embedding <-> ?::vector
			LIMIT ?`,
			embedding, model, issueID, embedding, neighborCount,
		).Scan(&neighbors).Error; err != nil {
			return err
		}

		if err := tx.Where("issue_id = ?", issueID).Delete(&models.SimilarIssue{}).Error; err != nil {
			return err
		}
		if len(neighbors) == 0 {
			return nil
		}
		now := time.Now().UTC()
		edges := make([]models.SimilarIssue, 0, len(neighbors))
		for _, n := range neighbors {
			edges = append(edges, models.SimilarIssue{
				IssueID:    issueID,
				NeighborID: n.NeighborID,
				Score:      1.0 / (1.0 + n.Distance),
				ComputedAt: now,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error
	})
}

// Worker konsumiert Embedding-Jobs von der Queue und pflegt den Vektor-Index.
type Worker struct {
	Store    Store
	Redis    *redis.Client
	Provider embeddings.Provider
	Logger   *zap.Logger

	JobsProcessed prometheus.Counter
	JobsFailed    prometheus.Counter
}

// NewWorker erstellt einen neuen Indexing Worker.
func NewWorker(store Store, rdb *redis.Client, provider embeddings.Provider, logger *zap.Logger) *Worker {
	return &Worker{Store: store, Redis: rdb, Provider: provider, Logger: logger}
}

// ProcessJob verarbeitet genau einen Embedding-Job. Ein Issue, das seit dem
// Enqueue verschwunden ist, zählt als erledigt; ein bereits vorhandener
// Vektor wird ohne force nicht neu berechnet.
func (w *Worker) ProcessJob(ctx context.Context, job models.EmbedJob) error {
	issue, err := w.Store.FindIssue(ctx, job.IssueID)
	if err != nil {
		return err
	}
	if issue == nil {
		w.Logger.Info("Embed job targets missing issue, dropping",
			zap.Uint("issue_id", job.IssueID))
		return nil
	}

	if !job.Force {
		exists, err := w.Store.HasVector(ctx, job.IssueID, w.Provider.Model())
		if err != nil {
			return err
		}
		if exists {
			w.Logger.Debug("Vector already indexed, skipping",
				zap.Uint("issue_id", job.IssueID), zap.String("model", w.Provider.Model()))
			return nil
		}
	}

	embedding, err := w.Provider.Embed(ctx, embeddings.IssueText(issue.Title, issue.Body))
	if err != nil {
		return err
	}
	if err := w.Store.SaveVector(ctx, job.IssueID, embedding, w.Provider.Model()); err != nil {
		return err
	}

	w.Logger.Info("Issue indexed",
		zap.Uint("issue_id", job.IssueID), zap.String("model", w.Provider.Model()))
	return nil
}

// Run konsumiert Jobs bis der Context abläuft. Fehlgeschlagene Jobs werden
// geloggt und verworfen; die Schleife läuft weiter.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("Indexing worker started",
		zap.String("queue", queue.EmbedQueueKey), zap.String("model", w.Provider.Model()))
	for {
		job, err := queue.DequeueEmbedJob(ctx, w.Redis, 5*time.Second)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.Logger.Info("Indexing worker stopping")
				return ctx.Err()
			}
			w.Logger.Error("Failed to dequeue embed job", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := w.ProcessJob(ctx, job); err != nil {
			if w.JobsFailed != nil {
				w.JobsFailed.Inc()
			}
			w.Logger.Error("Embed job failed",
				zap.Uint("issue_id", job.IssueID), zap.Error(err))
			continue
		}
		if w.JobsProcessed != nil {
			w.JobsProcessed.Inc()
		}
	}
}
