package services

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"triage-copilot/models"
)

// RetrieveService beantwortet Vektor- und Hybrid-Suchen. Alle Operationen
// sind read-only und dürfen parallel zum Indexing laufen; eine teilweise
// indexierte Modell-Generation ist erwartete Eventual Consistency.
type RetrieveService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRetrieveService erstellt eine neue Instanz des RetrieveService.
func NewRetrieveService(db *gorm.DB, logger *zap.Logger) *RetrieveService {
	return &RetrieveService{DB: db, Logger: logger}
}

type vectorCandidate struct {
	IssueID  uint
	Distance float64
}

type textCandidate struct {
	IssueID   uint
	TextScore float64
}

type scoredIssue struct {
	IssueID uint
	Score   float64
}

// vectorScore bildet eine Distanz auf (0,1] ab: monoton fallend,
// Selbst-Distanz 0 ergibt exakt 1.0.
func vectorScore(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + distance)
}

// VectorSearch ordnet Issues desselben Modells nach aufsteigender Distanz
// zum Query-Embedding. Ein Modell ohne indexierte Issues liefert ein leeres
// Ergebnis, keinen Fehler.
func (r *RetrieveService) VectorSearch(ctx context.Context, embedding models.Vector, limit int, model string) ([]models.RetrievalResult, error) {
	candidates, err := r.vectorCandidates(ctx, embedding, limit, model)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredIssue, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, scoredIssue{IssueID: c.IssueID, Score: vectorScore(c.Distance)})
	}
	r.Logger.Debug("Vector search completed",
		zap.String("model", model), zap.Int("row_count", len(scored)))
	return r.decorate(ctx, scored)
}

// HybridSearch holt Vektor- und Lexik-Kandidaten unabhängig voneinander und
// fusioniert die Vereinigung beider Mengen: wer auf einer Seite fehlt, trägt
// dort 0 bei. Leerer Query-Text degradiert zu reinem Vektor-Ranking.
func (r *RetrieveService) HybridSearch(ctx context.Context, embedding models.Vector, query string, limit int, alpha float64, model string) ([]models.RetrievalResult, error) {
	vecCandidates, err := r.vectorCandidates(ctx, embedding, limit, model)
	if err != nil {
		return nil, err
	}

	var textCandidates []textCandidate
	if strings.TrimSpace(query) != "" {
		textCandidates, err = r.textCandidates(ctx, query, limit)
		if err != nil {
			return nil, err
		}
	}

	vectorScores := make(map[uint]float64, len(vecCandidates))
	for _, c := range vecCandidates {
		vectorScores[c.IssueID] = vectorScore(c.Distance)
	}
	textScores := make(map[uint]float64, len(textCandidates))
	for _, c := range textCandidates {
		textScores[c.IssueID] = c.TextScore
	}

	scored := fuseCandidates(vectorScores, textScores, alpha, limit)
	r.Logger.Debug("Hybrid search completed",
		zap.String("model", model), zap.Float64("alpha", alpha), zap.Int("row_count", len(scored)))
	return r.decorate(ctx, scored)
}

func (r *RetrieveService) vectorCandidates(ctx context.Context, embedding models.Vector, limit int, model string) ([]vectorCandidate, error) {
	var candidates []vectorCandidate
	err := r.DB.WithContext(ctx).Raw(`
		SELECT iv.issue_id, iv.embedding <-> ?::vector AS distance
		FROM issue_vectors iv
		WHERE iv.model = ?
		ORDER BY iv.embedding <-> ?::vector
		LIMIT ?`,
		embedding, model, embedding, limit,
	).Scan(&candidates).Error
	return candidates, err
}

func (r *RetrieveService) textCandidates(ctx context.Context, query string, limit int) ([]textCandidate, error) {
	var candidates []textCandidate
	err := r.DB.WithContext(ctx).Raw(`
		SELECT i.id AS issue_id, ts_rank_cd(i.search_vector, plainto_tsquery('english', ?)) AS text_score
		FROM issues i
		WHERE i.search_vector @@ plainto_tsquery('english', ?)
		ORDER BY text_score DESC
		LIMIT ?`,
		query, query, limit,
	).Scan(&candidates).Error
	return candidates, err
}

// fuseCandidates mischt beide Kandidatenmengen zu einer Ordnung:
// blended = alpha*vector + (1-alpha)*text, absteigend, Tie-Break stabil
// über aufsteigende Issue-ID.
func fuseCandidates(vectorScores, textScores map[uint]float64, alpha float64, limit int) []scoredIssue {
	union := make(map[uint]struct{}, len(vectorScores)+len(textScores))
	for id := range vectorScores {
		union[id] = struct{}{}
	}
	for id := range textScores {
		union[id] = struct{}{}
	}

	scored := make([]scoredIssue, 0, len(union))
	for id := range union {
		blended := alpha*vectorScores[id] + (1-alpha)*textScores[id]
		scored = append(scored, scoredIssue{IssueID: id, Score: blended})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].IssueID < scored[j].IssueID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// decorate reichert Treffer um Titel, kanonische Route und Origin-URL an.
// Issues, die zwischenzeitlich verschwunden sind, fallen still heraus.
func (r *RetrieveService) decorate(ctx context.Context, scored []scoredIssue) ([]models.RetrievalResult, error) {
	if len(scored) == 0 {
		return []models.RetrievalResult{}, nil
	}
	ids := make([]uint, 0, len(scored))
	for _, s := range scored {
		ids = append(ids, s.IssueID)
	}

	var issues []models.Issue
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&issues).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Issue, len(issues))
	for i := range issues {
		byID[issues[i].ID] = &issues[i]
	}

	results := make([]models.RetrievalResult, 0, len(scored))
	for _, s := range scored {
		issue, ok := byID[s.IssueID]
		if !ok {
			continue
		}
		result := models.RetrievalResult{
			IssueID: s.IssueID,
			Title:   issue.Title,
			Score:   s.Score,
		}
		if info := BuildRoute(issue); info != nil {
			result.Route = info.Route
			result.OriginURL = info.OriginURL
		}
		results = append(results, result)
	}
	return results, nil
}
