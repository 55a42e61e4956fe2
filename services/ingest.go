package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"triage-copilot/models"
	"triage-copilot/queue"
)

// IngestService normalisiert Tracker-Payloads und schreibt sie in den Store.
type IngestService struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *zap.Logger
}

// NewIngestService erstellt eine neue Instanz des IngestService.
func NewIngestService(db *gorm.DB, rdb *redis.Client, logger *zap.Logger) *IngestService {
	return &IngestService{DB: db, Redis: rdb, Logger: logger}
}

// IssuePayload ist das normalisierte Zwischenformat vor dem Upsert.
type IssuePayload struct {
	Source      string
	ExternalKey string
	Title       string
	Body        string
	Repo        *string
	Project     *string
	Status      string
	CreatedAt   time.Time
	Labels      []string
	RawJSON     []byte
}

// NormalizeGitHubIssue baut aus einem GitHub-Webhook-Payload ein IssuePayload.
func NormalizeGitHubIssue(payload map[string]interface{}) (IssuePayload, error) {
	issue, ok := payload["issue"].(map[string]interface{})
	if !ok {
		issue = payload
	}
	repository, _ := payload["repository"].(map[string]interface{})

	repoFullName := stringField(repository, "full_name")
	if repoFullName == "" {
		repoFullName = stringField(repository, "id")
	}

	title := stringField(issue, "title")
	body := stringField(issue, "body")
	state := stringField(issue, "state")

	var number int
	switch v := issue["number"].(type) {
	case float64:
		number = int(v)
	}

	externalKey := ""
	if repoFullName != "" && number > 0 {
		externalKey = fmt.Sprintf("%s#%d", repoFullName, number)
	} else if id := idField(issue, "id"); id != "" {
		externalKey = id
	}
	if externalKey == "" {
		return IssuePayload{}, fmt.Errorf("github payload carries no usable external key")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return IssuePayload{}, err
	}

	return IssuePayload{
		Source:      "github",
		ExternalKey: externalKey,
		Title:       title,
		Body:        body,
		Repo:        optional(repoFullName),
		Status:      state,
		CreatedAt:   parseTimestamp(stringField(issue, "created_at")),
		Labels:      githubLabels(payload, issue),
		RawJSON:     raw,
	}, nil
}

// NormalizeJiraIssue baut aus einem Jira-Webhook-Payload ein IssuePayload.
func NormalizeJiraIssue(payload map[string]interface{}) (IssuePayload, error) {
	issue, ok := payload["issue"].(map[string]interface{})
	if !ok {
		issue = payload
	}
	fields, _ := issue["fields"].(map[string]interface{})

	key := stringField(issue, "key")
	if key == "" {
		key = idField(issue, "id")
	}
	if key == "" {
		return IssuePayload{}, fmt.Errorf("jira payload carries no usable external key")
	}

	project := ""
	if projectMap, ok := fields["project"].(map[string]interface{}); ok {
		project = stringField(projectMap, "key")
	}
	if project == "" {
		if m := jiraKeyPattern.FindStringSubmatch(key); m != nil {
			project = m[1]
		}
	}

	status := ""
	if statusMap, ok := fields["status"].(map[string]interface{}); ok {
		status = stringField(statusMap, "name")
	}
	if status == "" {
		status = stringField(issue, "status")
	}

	title := stringField(fields, "summary")
	if title == "" {
		title = stringField(issue, "summary")
	}
	body := stringField(fields, "description")
	if body == "" {
		body = stringField(issue, "description")
	}

	created := stringField(fields, "created")
	if created == "" {
		created = stringField(issue, "created_at")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return IssuePayload{}, err
	}

	return IssuePayload{
		Source:      "jira",
		ExternalKey: key,
		Title:       title,
		Body:        body,
		Project:     optional(project),
		Status:      status,
		CreatedAt:   parseTimestamp(created),
		Labels:      jiraLabels(payload, issue, fields),
		RawJSON:     raw,
	}, nil
}

// StoreIssue upsertet ein Issue auf (source, external_key) und ersetzt die
// Labels komplett. Gibt die Issue-ID zurück.
func (s *IngestService) StoreIssue(ctx context.Context, payload IssuePayload) (uint, error) {
	issue := models.Issue{
		Source:      payload.Source,
		ExternalKey: payload.ExternalKey,
		Title:       payload.Title,
		Body:        payload.Body,
		Repo:        payload.Repo,
		Project:     payload.Project,
		Status:      payload.Status,
		CreatedAt:   payload.CreatedAt,
		RawJSON:     payload.RawJSON,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source"}, {Name: "external_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "body", "repo", "project", "status", "raw_json", "updated_at",
			}),
		}).Create(&issue).Error; err != nil {
			return err
		}
		if issue.ID == 0 {
			// Beim Konfliktfall liefert GORM die ID nicht immer zurück
			var existing models.Issue
			if err := tx.Where("source = ? AND external_key = ?", payload.Source, payload.ExternalKey).
				First(&existing).Error; err != nil {
				return err
			}
			issue.ID = existing.ID
		}
		return replaceLabels(tx, issue.ID, payload.Labels, payload.Source)
	})
	if err != nil {
		return 0, err
	}

	s.Logger.Debug("Issue upserted",
		zap.String("source", payload.Source),
		zap.String("external_key", payload.ExternalKey),
		zap.Uint("issue_id", issue.ID))
	return issue.ID, nil
}

// EnqueueEmbedding legt den Embedding-Job für ein Issue auf die Queue.
func (s *IngestService) EnqueueEmbedding(ctx context.Context, issueID uint, force bool) error {
	return queue.EnqueueEmbedJob(ctx, s.Redis, issueID, force)
}

// replaceLabels ersetzt das Label-Set vollständig (delete-then-insert).
func replaceLabels(tx *gorm.DB, issueID uint, labels []string, source string) error {
	if err := tx.Where("issue_id = ?", issueID).Delete(&models.Label{}).Error; err != nil {
		return err
	}
	cleaned := make([]models.Label, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		cleaned = append(cleaned, models.Label{IssueID: issueID, Label: label, Source: source})
	}
	if len(cleaned) == 0 {
		return nil
	}
	return tx.Create(&cleaned).Error
}

func githubLabels(payload, issue map[string]interface{}) []string {
	for _, container := range []interface{}{payload["labels"], issue["labels"]} {
		list, ok := container.([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		labels := make([]string, 0, len(list))
		for _, entry := range list {
			switch v := entry.(type) {
			case string:
				labels = append(labels, v)
			case map[string]interface{}:
				if name, ok := v["name"].(string); ok {
					labels = append(labels, name)
				}
			}
		}
		if len(labels) > 0 {
			return labels
		}
	}
	return nil
}

func jiraLabels(payload, issue, fields map[string]interface{}) []string {
	for _, container := range []interface{}{fields["labels"], issue["labels"], payload["labels"]} {
		list, ok := container.([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		labels := make([]string, 0, len(list))
		for _, entry := range list {
			if s, ok := entry.(string); ok {
				labels = append(labels, s)
			}
		}
		if len(labels) > 0 {
			return labels
		}
	}
	return nil
}

// idField liest eine Tracker-ID, die je nach Payload als String oder als
// Zahl ankommt.
func idField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTimestamp normalisiert Tracker-Zeitstempel auf UTC; unparsebare
// Werte fallen auf jetzt zurück.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	normalized := strings.Replace(raw, "z", "Z", 1)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
