package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Provider berechnet Embeddings für Freitext. Für ein gegebenes Modell ist
// das Ergebnis deterministisch; die Länge entspricht immer Dimension().
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model gibt den Modell-Identifier zurück, unter dem Vektoren gespeichert werden.
	Model() string

	// Dimension gibt die Vektorlänge des Modells zurück.
	Dimension() int
}

// IssueText baut den kanonischen Embedding-Text eines Issues.
func IssueText(title, body string) string {
	return strings.TrimSpace(title + "\n\n" + body)
}

// CheckDimension vergleicht die deklarierte Spaltenbreite mit der
// Provider-Dimension. Ein Mismatch ist ein fataler Konfigurationsfehler,
// kein Grund für per-row Skips oder stilles Auffüllen.
func CheckDimension(declared, actual int, model string) error {
	if declared > 0 && declared != actual {
		return fmt.Errorf("issue_vectors.embedding expects %d dimensions but model %q produces %d; adjust the schema or use a compatible model",
			declared, model, actual)
	}
	return nil
}
