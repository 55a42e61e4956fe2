package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestNormalizeGitHubIssue(t *testing.T) {
	payload := mustParse(t, `{
		"repository": {"full_name": "acme/widgets"},
		"issue": {
			"number": 7,
			"title": "Login broken",
			"body": "500 on POST /login",
			"state": "open",
			"created_at": "2026-02-01T09:30:00Z",
			"labels": [{"name": "bug"}, {"name": "auth"}]
		}
	}`)

	got, err := NormalizeGitHubIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, "github", got.Source)
	assert.Equal(t, "acme/widgets#7", got.ExternalKey)
	assert.Equal(t, "Login broken", got.Title)
	assert.Equal(t, "500 on POST /login", got.Body)
	require.NotNil(t, got.Repo)
	assert.Equal(t, "acme/widgets", *got.Repo)
	assert.Equal(t, "open", got.Status)
	assert.Equal(t, []string{"bug", "auth"}, got.Labels)
	assert.Equal(t, time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), got.CreatedAt)
}

func TestNormalizeGitHubIssueFallbackKey(t *testing.T) {
	payload := mustParse(t, `{"issue": {"id": "998877", "title": "orphan"}}`)
	got, err := NormalizeGitHubIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, "998877", got.ExternalKey)
	assert.Nil(t, got.Repo)
}

func TestNormalizeGitHubIssueNumericIDFallback(t *testing.T) {
	// ohne Repository-Kontext muss auch eine numerische Issue-ID als
	// External Key durchgehen
	payload := mustParse(t, `{"issue": {"id": 998877, "title": "orphan"}}`)
	got, err := NormalizeGitHubIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, "998877", got.ExternalKey)
}

func TestNormalizeJiraIssueNumericIDFallback(t *testing.T) {
	payload := mustParse(t, `{"issue": {"id": 10002, "fields": {"summary": "keyless"}}}`)
	got, err := NormalizeJiraIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, "10002", got.ExternalKey)
}

func TestNormalizeGitHubIssueNoKey(t *testing.T) {
	_, err := NormalizeGitHubIssue(mustParse(t, `{"issue": {"title": "nothing to key on"}}`))
	assert.Error(t, err)
}

func TestNormalizeGitHubIssueStringLabels(t *testing.T) {
	payload := mustParse(t, `{
		"repository": {"full_name": "acme/widgets"},
		"issue": {"number": 1, "labels": ["bug", "ui"]}
	}`)
	got, err := NormalizeGitHubIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"bug", "ui"}, got.Labels)
}

func TestNormalizeJiraIssue(t *testing.T) {
	payload := mustParse(t, `{
		"issue": {
			"key": "ABC-42",
			"fields": {
				"summary": "Checkout timeout",
				"description": "payment gateway hangs",
				"project": {"key": "ABC"},
				"status": {"name": "In Progress"},
				"labels": ["payments"],
				"created": "2026-03-15T12:00:00.000+0000"
			}
		}
	}`)

	got, err := NormalizeJiraIssue(payload)
	require.NoError(t, err)
	assert.Equal(t, "jira", got.Source)
	assert.Equal(t, "ABC-42", got.ExternalKey)
	assert.Equal(t, "Checkout timeout", got.Title)
	assert.Equal(t, "payment gateway hangs", got.Body)
	require.NotNil(t, got.Project)
	assert.Equal(t, "ABC", *got.Project)
	assert.Equal(t, "In Progress", got.Status)
	assert.Equal(t, []string{"payments"}, got.Labels)
}

func TestNormalizeJiraIssueProjectFromKey(t *testing.T) {
	payload := mustParse(t, `{"issue": {"key": "OPS-9", "fields": {"summary": "disk full"}}}`)
	got, err := NormalizeJiraIssue(payload)
	require.NoError(t, err)
	require.NotNil(t, got.Project)
	assert.Equal(t, "OPS", *got.Project)
}

func TestNormalizeJiraIssueNoKey(t *testing.T) {
	_, err := NormalizeJiraIssue(mustParse(t, `{"issue": {"fields": {"summary": "x"}}}`))
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	got := parseTimestamp("2026-02-01T09:30:00Z")
	assert.Equal(t, time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), got)

	// Jira-Format mit Offset ohne Doppelpunkt
	got = parseTimestamp("2026-03-15T12:00:00.000+0000")
	assert.Equal(t, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), got)

	// kleingeschriebenes z
	got = parseTimestamp("2026-02-01T09:30:00z")
	assert.Equal(t, time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), got)

	// unparsebar: fällt auf jetzt zurück statt zu scheitern
	before := time.Now().UTC()
	got = parseTimestamp("yesterday-ish")
	assert.False(t, got.Before(before.Add(-time.Minute)))
}
