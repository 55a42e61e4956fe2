package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"triage-copilot/config"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// HTTPProvider spricht einen OpenAI-kompatiblen /v1/embeddings-Endpoint an
// (z.B. text-embeddings-inference mit einem MiniLM-Modell).
type HTTPProvider struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	logger    *zap.Logger
}

// NewHTTPProvider erstellt einen neuen HTTP-basierten Embedding-Provider.
func NewHTTPProvider(cfg *config.Config, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   cfg.EmbeddingBaseURL,
		apiKey:    cfg.EmbeddingAPIKey,
		model:     cfg.EmbeddingModel,
		dimension: cfg.EmbeddingDimension,
		logger:    logger,
	}
}

func (p *HTTPProvider) Model() string  { return p.model }
func (p *HTTPProvider) Dimension() int { return p.dimension }

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed berechnet den Vektor für einen Text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Input: []string{text}, Model: p.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %s", resp.Status)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}

	vector := parsed.Data[0].Embedding
	if err := CheckDimension(p.dimension, len(vector), p.model); err != nil {
		return nil, err
	}
	return vector, nil
}
