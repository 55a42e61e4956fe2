package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DeterministicProvider erzeugt Vektoren rein aus einem Text-Hash. Für die
// Sandbox und Tests: kein Netz, gleicher Text ergibt immer denselben Vektor.
type DeterministicProvider struct {
	model     string
	dimension int
}

// NewDeterministicProvider erstellt einen Hash-basierten Provider.
func NewDeterministicProvider(model string, dimension int) *DeterministicProvider {
	return &DeterministicProvider{model: model, dimension: dimension}
}

func (p *DeterministicProvider) Model() string  { return p.model }
func (p *DeterministicProvider) Dimension() int { return p.dimension }

// Embed leitet den Vektor aus fortgeschriebenen SHA-256-Hashes ab und
// normalisiert ihn auf Einheitslänge.
func (p *DeterministicProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, p.dimension)
	seed := sha256.Sum256([]byte(text))
	block := seed[:]
	for i := 0; i < p.dimension; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4 : (i%8)*4+4])
		// auf [-1, 1) abbilden
		vector[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}

	var norm float64
	for _, f := range vector {
		norm += float64(f) * float64(f)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
	return vector, nil
}
