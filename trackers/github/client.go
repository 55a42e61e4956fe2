package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"triage-copilot/config"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

const apiBaseURL = "https://api.github.com"

// Client schreibt Triage-Ergebnisse zurück an GitHub Issues.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt einen neuen GitHub-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}) error {
	if c.Config.GitHubToken == "" {
		return fmt.Errorf("github token ist nicht konfiguriert")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.GitHubToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github request failed with status: %d", resp.StatusCode)
	}
	return nil
}

// AddLabels hängt Labels an ein Issue an, ohne bestehende zu entfernen.
func (c *Client) AddLabels(ctx context.Context, ownerRepo string, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", apiBaseURL, ownerRepo, number)
	log := c.Logger.With(zap.String("repo", ownerRepo), zap.Int("number", number))
	log.Debug("Rufe GitHub Labels API auf.")

	if err := c.do(ctx, http.MethodPost, url, map[string]interface{}{"labels": labels}); err != nil {
		return err
	}
	log.Info("Labels an GitHub-Issue angehängt.", zap.Strings("labels", labels))
	return nil
}

// Assign trägt Assignees in ein Issue ein.
func (c *Client) Assign(ctx context.Context, ownerRepo string, number int, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/assignees", apiBaseURL, ownerRepo, number)
	log := c.Logger.With(zap.String("repo", ownerRepo), zap.Int("number", number))
	log.Debug("Rufe GitHub Assignees API auf.")

	if err := c.do(ctx, http.MethodPost, url, map[string]interface{}{"assignees": assignees}); err != nil {
		return err
	}
	log.Info("Assignees an GitHub-Issue eingetragen.", zap.Strings("assignees", assignees))
	return nil
}

// PostComment schreibt einen Kommentar an ein Issue.
func (c *Client) PostComment(ctx context.Context, ownerRepo string, number int, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", apiBaseURL, ownerRepo, number)
	log := c.Logger.With(zap.String("repo", ownerRepo), zap.Int("number", number))
	log.Debug("Rufe GitHub Comments API auf.")

	if err := c.do(ctx, http.MethodPost, url, map[string]string{"body": body}); err != nil {
		return err
	}
	log.Info("Kommentar an GitHub-Issue geschrieben.")
	return nil
}
