package main

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabeledIssues(t *testing.T) {
	csv := strings.Join([]string{
		"id,title,body,duplicate_of",
		"a,Login broken,500 on POST /login,",
		`b,"Login fails, too",same endpoint,a`,
	}, "\n")

	rows, err := parseLabeledIssues(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "", rows[0].DuplicateOf)
	assert.Equal(t, "Login fails, too", rows[1].Title)
	assert.Equal(t, "a", rows[1].DuplicateOf)
}

func TestParseLabeledIssuesColumnOrder(t *testing.T) {
	// Spalten werden über die Kopfzeile aufgelöst, nicht über Positionen
	csv := "duplicate_of,body,id,title\na,text,b,dup\n"
	rows, err := parseLabeledIssues(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)
	assert.Equal(t, "dup", rows[0].Title)
	assert.Equal(t, "a", rows[0].DuplicateOf)
}

func TestParseLabeledIssuesMissingColumn(t *testing.T) {
	_, err := parseLabeledIssues(strings.NewReader("id,title,body\na,x,y\n"))
	assert.ErrorContains(t, err, "duplicate_of")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestRankNeighborsExcludesSelfAndBreaksTies(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{1, 0},
		{1, 0},
		{0, 1},
	}
	ranked := rankNeighbors(vectors, 0)
	assert.Equal(t, []int{1, 2, 3}, ranked)
}

func TestEvaluateDuplicatesHitAtRankOne(t *testing.T) {
	rows := []evalRow{
		{ID: "a", DuplicateOf: "b"},
		{ID: "b"},
		{ID: "c"},
	}
	vectors := [][]float32{
		{1, 0},
		{0.99, 0.1},
		{0, 1},
	}

	metrics := evaluateDuplicates(rows, vectors, 1)
	assert.Equal(t, 1, metrics.Count)
	require.NotNil(t, metrics.HitRate)
	assert.InDelta(t, 1.0, *metrics.HitRate, 1e-9)
	assert.InDelta(t, 1.0, *metrics.PrecisionAtK, 1e-9)
	assert.InDelta(t, 1.0, *metrics.NDCG, 1e-9)
}

func TestEvaluateDuplicatesMiss(t *testing.T) {
	rows := []evalRow{
		{ID: "a", DuplicateOf: "c"},
		{ID: "b"},
		{ID: "c"},
	}
	vectors := [][]float32{
		{1, 0},
		{0.99, 0.1},
		{0, 1},
	}

	// c ist am weitesten entfernt: bei k=1 kein Treffer
	metrics := evaluateDuplicates(rows, vectors, 1)
	assert.Equal(t, 1, metrics.Count)
	require.NotNil(t, metrics.HitRate)
	assert.Zero(t, *metrics.HitRate)
	assert.Zero(t, *metrics.PrecisionAtK)
	assert.Zero(t, *metrics.NDCG)
}

func TestEvaluateDuplicatesDiscountedRank(t *testing.T) {
	rows := []evalRow{
		{ID: "a", DuplicateOf: "c"},
		{ID: "b"},
		{ID: "c"},
	}
	vectors := [][]float32{
		{1, 0},
		{0.99, 0.1},
		{0.9, 0.3},
	}

	// c steht auf Rang 2 (0-basiert: 1): NDCG = 1/log2(3), Precision@3 = 1/3
	metrics := evaluateDuplicates(rows, vectors, 3)
	assert.Equal(t, 1, metrics.Count)
	require.NotNil(t, metrics.NDCG)
	assert.InDelta(t, 1.0/math.Log2(3), *metrics.NDCG, 1e-9)
	assert.InDelta(t, 1.0/3.0, *metrics.PrecisionAtK, 1e-9)
	assert.InDelta(t, 1.0, *metrics.HitRate, 1e-9)
}

func TestEvaluateDuplicatesIgnoresUnknownTargets(t *testing.T) {
	rows := []evalRow{
		{ID: "a", DuplicateOf: "ghost"},
		{ID: "b"},
	}
	vectors := [][]float32{{1, 0}, {0, 1}}

	metrics := evaluateDuplicates(rows, vectors, 5)
	assert.Equal(t, 0, metrics.Count)
	assert.Nil(t, metrics.HitRate)
	assert.Nil(t, metrics.PrecisionAtK)
	assert.Nil(t, metrics.NDCG)
}

func TestEvaluateDuplicatesAverages(t *testing.T) {
	rows := []evalRow{
		{ID: "a", DuplicateOf: "b"},
		{ID: "b"},
		{ID: "c", DuplicateOf: "d"},
		{ID: "d"},
	}
	// a↔b treffen sich, c verfehlt d bei k=1
	vectors := [][]float32{
		{1, 0},
		{0.99, 0.05},
		{0.98, 0.1},
		{0, 1},
	}

	metrics := evaluateDuplicates(rows, vectors, 1)
	assert.Equal(t, 2, metrics.Count)
	require.NotNil(t, metrics.HitRate)
	assert.InDelta(t, 0.5, *metrics.HitRate, 1e-9)
	assert.InDelta(t, 0.5, *metrics.PrecisionAtK, 1e-9)
	assert.InDelta(t, 0.5, *metrics.NDCG, 1e-9)
}
