package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-copilot/embeddings"
	"triage-copilot/models"
)

type fakeStore struct {
	issues  map[uint]*models.Issue
	vectors map[uint]string // issue_id -> model
	saved   []uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		issues:  make(map[uint]*models.Issue),
		vectors: make(map[uint]string),
	}
}

func (s *fakeStore) FindIssue(_ context.Context, issueID uint) (*models.Issue, error) {
	return s.issues[issueID], nil
}

func (s *fakeStore) HasVector(_ context.Context, issueID uint, model string) (bool, error) {
	return s.vectors[issueID] == model, nil
}

func (s *fakeStore) SaveVector(_ context.Context, issueID uint, embedding models.Vector, model string) error {
	s.vectors[issueID] = model
	s.saved = append(s.saved, issueID)
	return nil
}

func newTestWorker(store Store) *Worker {
	provider := embeddings.NewDeterministicProvider("test-model", 32)
	return NewWorker(store, nil, provider, zap.NewNop())
}

func TestProcessJobIndexesIssue(t *testing.T) {
	store := newFakeStore()
	store.issues[1] = &models.Issue{ID: 1, Title: "Login broken", Body: "500 on POST"}
	w := newTestWorker(store)

	require.NoError(t, w.ProcessJob(context.Background(), models.EmbedJob{IssueID: 1}))
	assert.Equal(t, []uint{1}, store.saved)
	assert.Equal(t, "test-model", store.vectors[1])
}

func TestProcessJobMissingIssueIsNotAnError(t *testing.T) {
	store := newFakeStore()
	w := newTestWorker(store)

	require.NoError(t, w.ProcessJob(context.Background(), models.EmbedJob{IssueID: 99}))
	assert.Empty(t, store.saved)
}

func TestProcessJobSkipsExistingVector(t *testing.T) {
	store := newFakeStore()
	store.issues[1] = &models.Issue{ID: 1, Title: "already indexed"}
	store.vectors[1] = "test-model"
	w := newTestWorker(store)

	require.NoError(t, w.ProcessJob(context.Background(), models.EmbedJob{IssueID: 1}))
	assert.Empty(t, store.saved)
}

func TestProcessJobForceReindexes(t *testing.T) {
	store := newFakeStore()
	store.issues[1] = &models.Issue{ID: 1, Title: "already indexed"}
	store.vectors[1] = "test-model"
	w := newTestWorker(store)

	require.NoError(t, w.ProcessJob(context.Background(), models.EmbedJob{IssueID: 1, Force: true}))
	assert.Equal(t, []uint{1}, store.saved)
}

func TestProcessJobDifferentModelIsNotSkipped(t *testing.T) {
	store := newFakeStore()
	store.issues[1] = &models.Issue{ID: 1, Title: "indexed by an old model"}
	store.vectors[1] = "old-model"
	w := newTestWorker(store)

	require.NoError(t, w.ProcessJob(context.Background(), models.EmbedJob{IssueID: 1}))
	assert.Equal(t, []uint{1}, store.saved)
	assert.Equal(t, "test-model", store.vectors[1])
}
