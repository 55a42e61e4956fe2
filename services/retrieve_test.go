package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorScore(t *testing.T) {
	assert.Equal(t, 1.0, vectorScore(0))
	assert.Equal(t, 0.5, vectorScore(1))
	// negative Distanzen (Float-Rauschen) werden auf 0 geklemmt
	assert.Equal(t, 1.0, vectorScore(-0.001))
	// monoton fallend
	assert.Greater(t, vectorScore(0.5), vectorScore(2.0))
	// immer in (0, 1]
	assert.Greater(t, vectorScore(1000), 0.0)
	assert.LessOrEqual(t, vectorScore(1000), 1.0)
}

func TestFuseCandidatesUnion(t *testing.T) {
	vector := map[uint]float64{1: 0.9, 2: 0.5}
	text := map[uint]float64{2: 0.4, 3: 0.8}

	scored := fuseCandidates(vector, text, 0.5, 10)
	require.Len(t, scored, 3)

	byID := make(map[uint]float64)
	for _, s := range scored {
		byID[s.IssueID] = s.Score
	}
	// wer auf einer Seite fehlt, trägt dort 0 bei
	assert.InDelta(t, 0.45, byID[1], 1e-9)
	assert.InDelta(t, 0.45, byID[2], 1e-9)
	assert.InDelta(t, 0.40, byID[3], 1e-9)
}

func TestFuseCandidatesOrderingAndTieBreak(t *testing.T) {
	vector := map[uint]float64{7: 0.6, 3: 0.6, 5: 0.9}
	scored := fuseCandidates(vector, nil, 1.0, 10)
	require.Len(t, scored, 3)
	assert.Equal(t, uint(5), scored[0].IssueID)
	// Gleichstand: aufsteigende ID
	assert.Equal(t, uint(3), scored[1].IssueID)
	assert.Equal(t, uint(7), scored[2].IssueID)
}

func TestFuseCandidatesAlphaExtremes(t *testing.T) {
	vector := map[uint]float64{1: 1.0}
	text := map[uint]float64{2: 1.0}

	pureVector := fuseCandidates(vector, text, 1.0, 10)
	assert.Equal(t, uint(1), pureVector[0].IssueID)
	assert.Equal(t, 1.0, pureVector[0].Score)
	assert.Equal(t, 0.0, pureVector[1].Score)

	pureText := fuseCandidates(vector, text, 0.0, 10)
	assert.Equal(t, uint(2), pureText[0].IssueID)
}

func TestFuseCandidatesLimit(t *testing.T) {
	vector := map[uint]float64{1: 0.9, 2: 0.8, 3: 0.7, 4: 0.6}
	scored := fuseCandidates(vector, nil, 1.0, 2)
	require.Len(t, scored, 2)
	assert.Equal(t, uint(1), scored[0].IssueID)
	assert.Equal(t, uint(2), scored[1].IssueID)
}

func TestFuseCandidatesEmpty(t *testing.T) {
	assert.Empty(t, fuseCandidates(nil, nil, 0.5, 10))
}
