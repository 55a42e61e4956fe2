package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"triage-copilot/config"
	"triage-copilot/embeddings"
)

// evalConfig ist bewusst schmal: der Eval braucht weder Datenbank noch Redis,
// nur den Embedding-Provider. Default ist der deterministische Provider,
// damit der Eval offline läuft.
type evalConfig struct {
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"deterministic"`
	EmbeddingBaseURL   string `envconfig:"EMBEDDING_BASE_URL" default:"http://embeddings:8081"`
	EmbeddingAPIKey    string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`
}

// evalRow ist eine gelabelte Zeile des Eval-Datensatzes. DuplicateOf ist leer,
// wenn die Zeile kein bekanntes Duplikat hat; solche Zeilen zählen nur als
// Retrieval-Kandidaten, nicht in die Metriken.
type evalRow struct {
	ID          string
	Title       string
	Body        string
	DuplicateOf string
}

// evalMetrics ist das JSON-Ergebnis. Pointer-Felder bleiben null, wenn keine
// gelabelte Zeile existiert.
type evalMetrics struct {
	Count        int      `json:"count"`
	HitRate      *float64 `json:"hit_rate"`
	PrecisionAtK *float64 `json:"p@k"`
	NDCG         *float64 `json:"ndcg"`
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: eval [flags] <issues.csv>

Bewertet die Duplikat-Erkennung über einen gelabelten CSV-Datensatz mit den
Spalten id, title, body, duplicate_of. Jede Zeile wird eingebettet; für jede
Zeile mit duplicate_of wird geprüft, ob das Ziel unter den k ähnlichsten
anderen Zeilen liegt.

Flags:
  -k N   Größe der Trefferliste (default 5)
`)
	os.Exit(2)
}

func main() {
	k := flag.Int("k", 5, "size of the retrieved neighbor list")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}
	if *k < 1 {
		log.Fatal("-k muss mindestens 1 sein")
	}

	_ = godotenv.Load()
	var cfg evalConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des Embedding-Providers: %v", err)
	}

	rows, err := readLabeledIssues(flag.Arg(0))
	if err != nil {
		log.Fatalf("Fehler beim Lesen von %s: %v", flag.Arg(0), err)
	}
	log.Printf("%d Zeilen geladen, Modell %s", len(rows), provider.Model())

	ctx := context.Background()
	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		vector, err := provider.Embed(ctx, embeddings.IssueText(row.Title, row.Body))
		if err != nil {
			log.Fatalf("Fehler beim Embedding von Zeile %s: %v", row.ID, err)
		}
		vectors[i] = vector
	}

	metrics := evaluateDuplicates(rows, vectors, *k)
	out, err := json.Marshal(metrics)
	if err != nil {
		log.Fatalf("Fehler beim Serialisieren der Metriken: %v", err)
	}
	fmt.Println(string(out))
}

func newProvider(cfg evalConfig) (embeddings.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "deterministic":
		return embeddings.NewDeterministicProvider(cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	case "http":
		logging, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		return embeddings.NewHTTPProvider(&config.Config{
			EmbeddingBaseURL:   cfg.EmbeddingBaseURL,
			EmbeddingAPIKey:    cfg.EmbeddingAPIKey,
			EmbeddingModel:     cfg.EmbeddingModel,
			EmbeddingDimension: cfg.EmbeddingDimension,
		}, logging), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// readLabeledIssues liest den Eval-CSV. Die Spalten werden über die
// Kopfzeile aufgelöst, nicht über feste Positionen.
func readLabeledIssues(path string) ([]evalRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseLabeledIssues(f)
}

func parseLabeledIssues(r io.Reader) ([]evalRow, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range []string{"id", "title", "body", "duplicate_of"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", required)
		}
	}

	var rows []evalRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, evalRow{
			ID:          record[columns["id"]],
			Title:       record[columns["title"]],
			Body:        record[columns["body"]],
			DuplicateOf: record[columns["duplicate_of"]],
		})
	}
	return rows, nil
}

// evaluateDuplicates berechnet Hit-Rate, Precision@k und NDCG@k über alle
// Zeilen mit bekanntem duplicate_of-Ziel. Pro gelabelter Zeile gibt es genau
// ein relevantes Ziel, daher ist Precision@k 1/k pro Treffer und der NDCG
// reduziert sich auf 1/log2(rank+2).
func evaluateDuplicates(rows []evalRow, vectors [][]float32, k int) evalMetrics {
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		index[row.ID] = i
	}

	var count, hits int
	var precisionSum, ndcgSum float64
	for i, row := range rows {
		if row.DuplicateOf == "" {
			continue
		}
		target, ok := index[row.DuplicateOf]
		if !ok || target == i {
			continue
		}
		count++

		ranked := rankNeighbors(vectors, i)
		limit := k
		if limit > len(ranked) {
			limit = len(ranked)
		}
		rank := -1
		for pos := 0; pos < limit; pos++ {
			if ranked[pos] == target {
				rank = pos
				break
			}
		}
		if rank >= 0 {
			hits++
			precisionSum += 1.0 / float64(k)
			ndcgSum += 1.0 / math.Log2(float64(rank)+2)
		}
	}

	if count == 0 {
		return evalMetrics{Count: 0}
	}
	hitRate := float64(hits) / float64(count)
	precision := precisionSum / float64(count)
	ndcg := ndcgSum / float64(count)
	return evalMetrics{Count: count, HitRate: &hitRate, PrecisionAtK: &precision, NDCG: &ndcg}
}

// rankNeighbors sortiert alle anderen Zeilen nach Kosinus-Ähnlichkeit
// absteigend; bei Gleichstand gewinnt der kleinere Index.
func rankNeighbors(vectors [][]float32, self int) []int {
	ranked := make([]int, 0, len(vectors)-1)
	for i := range vectors {
		if i != self {
			ranked = append(ranked, i)
		}
	}
	sims := make([]float64, len(vectors))
	for _, i := range ranked {
		sims[i] = cosine(vectors[self], vectors[i])
	}
	sort.Slice(ranked, func(a, b int) bool {
		if sims[ranked[a]] != sims[ranked[b]] {
			return sims[ranked[a]] > sims[ranked[b]]
		}
		return ranked[a] < ranked[b]
	})
	return ranked
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
