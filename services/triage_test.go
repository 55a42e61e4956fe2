package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-copilot/models"
)

func TestNoOpRerankerIsIdentity(t *testing.T) {
	candidates := []models.RetrievalResult{
		{IssueID: 3, Score: 0.9},
		{IssueID: 1, Score: 0.7},
	}
	got, err := NoOpReranker{}.Rerank(context.Background(), "query", candidates)
	require.NoError(t, err)
	assert.Equal(t, candidates, got)
}
