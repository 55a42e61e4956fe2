package services

import (
	"context"

	"go.uber.org/zap"

	"triage-copilot/embeddings"
	"triage-copilot/models"
)

// defaultTriageLabel markiert jeden Vorschlag, solange keine gelernte
// Label-Zuordnung existiert.
const defaultTriageLabel = "needs-triage"

// Reranker ordnet eine Kandidatenliste um, ohne Treffer hinzuzufügen oder zu
// entfernen. Die Standard-Implementierung ist die Identität; echte Reranker
// (Cross-Encoder o.ä.) docken über dieses Interface an.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.RetrievalResult) ([]models.RetrievalResult, error)
}

// NoOpReranker gibt die Kandidaten unverändert zurück.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ string, candidates []models.RetrievalResult) ([]models.RetrievalResult, error) {
	return candidates, nil
}

// TriageService baut aus Titel und Body eines neuen Issues einen
// Triage-Vorschlag: ähnliche Issues plus Label- und Assignee-Kandidaten.
type TriageService struct {
	Retriever *RetrieveService
	Provider  embeddings.Provider
	Reranker  Reranker
	Logger    *zap.Logger
}

// NewTriageService erstellt eine neue Instanz des TriageService.
func NewTriageService(retriever *RetrieveService, provider embeddings.Provider, reranker Reranker, logger *zap.Logger) *TriageService {
	if reranker == nil {
		reranker = NoOpReranker{}
	}
	return &TriageService{Retriever: retriever, Provider: provider, Reranker: reranker, Logger: logger}
}

// Propose erstellt einen Triage-Vorschlag. Ohne indexierte Nachbarn kommt ein
// Vorschlag mit leerer Similar-Liste zurück, kein Fehler.
func (t *TriageService) Propose(ctx context.Context, title, body string, topK int) (*models.TriageProposal, error) {
	text := embeddings.IssueText(title, body)
	embedding, err := t.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	similar, err := t.Retriever.VectorSearch(ctx, embedding, topK, t.Provider.Model())
	if err != nil {
		return nil, err
	}
	similar, err = t.Reranker.Rerank(ctx, text, similar)
	if err != nil {
		return nil, err
	}

	t.Logger.Debug("Triage proposal assembled",
		zap.Int("top_k", topK), zap.Int("similar_count", len(similar)))

	return &models.TriageProposal{
		Labels:             []string{defaultTriageLabel},
		AssigneeCandidates: []string{},
		Summary:            "Automated triage proposal based on nearest indexed issues.",
		Similar:            similar,
	}, nil
}
