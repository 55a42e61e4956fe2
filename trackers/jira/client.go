package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"triage-copilot/config"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Client schreibt Triage-Ergebnisse zurück an Jira-Issues.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt einen neuen Jira-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) error {
	if c.Config.JiraBaseURL == "" || c.Config.JiraEmail == "" || c.Config.JiraToken == "" {
		return fmt.Errorf("jira zugangsdaten sind nicht konfiguriert")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := strings.TrimRight(c.Config.JiraBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.Config.JiraEmail, c.Config.JiraToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jira request failed with status: %d", resp.StatusCode)
	}
	return nil
}

// AddLabels hängt Labels an ein Issue an, ohne bestehende zu entfernen.
func (c *Client) AddLabels(ctx context.Context, key string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	adds := make([]map[string]string, 0, len(labels))
	for _, label := range labels {
		adds = append(adds, map[string]string{"add": label})
	}
	payload := map[string]interface{}{
		"update": map[string]interface{}{"labels": adds},
	}
	log := c.Logger.With(zap.String("key", key))
	log.Debug("Rufe Jira Issue-Update API auf.")

	if err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key, payload); err != nil {
		return err
	}
	log.Info("Labels an Jira-Issue angehängt.", zap.Strings("labels", labels))
	return nil
}

// Assign setzt den Assignee eines Issues. Jira kennt genau einen Assignee;
// von mehreren Kandidaten gewinnt der erste.
func (c *Client) Assign(ctx context.Context, key string, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	log := c.Logger.With(zap.String("key", key))
	log.Debug("Rufe Jira Assignee API auf.")

	payload := map[string]string{"name": assignees[0]}
	if err := c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+key+"/assignee", payload); err != nil {
		return err
	}
	log.Info("Assignee an Jira-Issue gesetzt.", zap.String("assignee", assignees[0]))
	return nil
}

// PostComment schreibt einen Kommentar an ein Issue.
func (c *Client) PostComment(ctx context.Context, key, body string) error {
	log := c.Logger.With(zap.String("key", key))
	log.Debug("Rufe Jira Comment API auf.")

	if err := c.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/comment", map[string]string{"body": body}); err != nil {
		return err
	}
	log.Info("Kommentar an Jira-Issue geschrieben.")
	return nil
}
