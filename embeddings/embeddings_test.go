package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueText(t *testing.T) {
	assert.Equal(t, "Title\n\nBody", IssueText("Title", "Body"))
	assert.Equal(t, "Title", IssueText("Title", ""))
	assert.Equal(t, "Body", IssueText("", "Body"))
	assert.Equal(t, "", IssueText("", ""))
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension(384, 384, "minilm"))
	// 0 bedeutet: Spalte noch ohne feste Dimension
	assert.NoError(t, CheckDimension(0, 256, "minilm"))
	assert.Error(t, CheckDimension(384, 256, "minilm"))
}

func TestDeterministicProviderIsDeterministic(t *testing.T) {
	p := NewDeterministicProvider("test-model", 384)

	a, err := p.Embed(context.Background(), "login fails with 500")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "login fails with 500")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := p.Embed(context.Background(), "a different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDeterministicProviderDimension(t *testing.T) {
	p := NewDeterministicProvider("test-model", 64)
	v, err := p.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, v, 64)
	assert.Equal(t, 64, p.Dimension())
	assert.Equal(t, "test-model", p.Model())
}

func TestDeterministicProviderUnitNorm(t *testing.T) {
	p := NewDeterministicProvider("test-model", 384)
	v, err := p.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}
