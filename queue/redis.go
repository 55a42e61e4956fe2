package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"triage-copilot/config"
	"triage-copilot/models"
)

// EmbedQueueKey ist die Redis-Liste, über die Embedding-Jobs laufen.
const EmbedQueueKey = "triage:embed"

// NewClient erstellt den Redis-Client für die Job-Queue.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// EnqueueEmbedJob legt einen Embedding-Job auf die Queue.
func EnqueueEmbedJob(ctx context.Context, rdb *redis.Client, issueID uint, force bool) error {
	payload, err := json.Marshal(models.EmbedJob{IssueID: issueID, Force: force})
	if err != nil {
		return err
	}
	return rdb.RPush(ctx, EmbedQueueKey, payload).Err()
}

// DequeueEmbedJob blockiert bis zum nächsten Job. timeout 0 blockiert
// unbegrenzt; bei Timeout kommt redis.Nil zurück.
func DequeueEmbedJob(ctx context.Context, rdb *redis.Client, timeout time.Duration) (models.EmbedJob, error) {
	var job models.EmbedJob
	res, err := rdb.BLPop(ctx, timeout, EmbedQueueKey).Result()
	if err != nil {
		return job, err
	}
	// BLPop liefert [key, value]
	err = json.Unmarshal([]byte(res[1]), &job)
	return job, err
}
