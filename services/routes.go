package services

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"triage-copilot/models"
)

// Kanonische Adressierung: jedes Issue bekommt genau eine stabile interne
// Route, unabhängig vom Quell-Tracker. Gleiche Eingaben ergeben immer
// dieselbe Route; zwei Issues teilen sich nie eine Route.

var jiraKeyPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)-(\d+)$`)

const (
	githubRepoFallback = "sandbox/sandbox"
	jiraSiteFallback   = "jira"
)

// rawPayload macht die heterogenen Roh-Payloads (GitHub vs. Jira, Webhook vs.
// Sandbox) über geordnete Extraktions-Strategien zugänglich: pro Feld eine
// Liste von Pfaden, der erste nicht-leere Treffer gewinnt.
type rawPayload map[string]interface{}

func parseRaw(data []byte) rawPayload {
	if len(data) == 0 {
		return rawPayload{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return rawPayload{}
	}
	return m
}

// dig läuft einen Pfad aus Map-Schlüsseln ab.
func (r rawPayload) dig(path ...string) interface{} {
	var current interface{} = map[string]interface{}(r)
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// digString versucht mehrere Pfade, erster nicht-leerer String gewinnt.
func (r rawPayload) digString(paths ...[]string) string {
	for _, path := range paths {
		if s, ok := r.dig(path...).(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// digNumber versucht mehrere Pfade, erster numerischer Wert gewinnt.
func (r rawPayload) digNumber(paths ...[]string) (int, bool) {
	for _, path := range paths {
		switch v := r.dig(path...).(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// BuildRoute leitet die kanonische Route eines Issues ab. Rückgabe nil, wenn
// die minimal identifizierenden Felder fehlen — Aufrufer behandeln nil als
// "nicht adressierbar" und bauen niemals eine Teil-Route zusammen.
func BuildRoute(issue *models.Issue) *models.RouteInfo {
	if issue == nil {
		return nil
	}
	raw := parseRaw(issue.RawJSON)
	switch issue.Source {
	case "github":
		return buildGitHubRoute(issue, raw)
	case "jira":
		return buildJiraRoute(issue, raw)
	default:
		return nil
	}
}

func buildGitHubRoute(issue *models.Issue, raw rawPayload) *models.RouteInfo {
	// owner/repo: strukturiertes Feld, dann Repository-Hinweis im Payload,
	// dann Fallback-Literal.
	ownerRepo := ""
	if issue.Repo != nil && strings.Contains(*issue.Repo, "/") {
		ownerRepo = *issue.Repo
	}
	if ownerRepo == "" {
		ownerRepo = raw.digString(
			[]string{"repository", "full_name"},
			[]string{"repository", "id"},
		)
		if !strings.Contains(ownerRepo, "/") {
			ownerRepo = ""
		}
	}
	if ownerRepo == "" {
		ownerRepo = githubRepoFallback
	}

	number, ok := githubIssueNumber(issue, raw)
	if !ok {
		return nil
	}

	parts := strings.SplitN(ownerRepo, "/", 2)
	route := fmt.Sprintf("/gh/%s/%s/issues/%d", parts[0], parts[1], number)
	origin := fmt.Sprintf("https://github.com/%s/%s/issues/%d", parts[0], parts[1], number)
	return &models.RouteInfo{Route: route, OriginURL: &origin}
}

func githubIssueNumber(issue *models.Issue, raw rawPayload) (int, bool) {
	// "owner/repo#7" im External Key hat Vorrang
	if idx := strings.LastIndex(issue.ExternalKey, "#"); idx >= 0 {
		if n, err := strconv.Atoi(issue.ExternalKey[idx+1:]); err == nil {
			return n, true
		}
	}
	return raw.digNumber(
		[]string{"issue", "number"},
		[]string{"number"},
	)
}

func buildJiraRoute(issue *models.Issue, raw rawPayload) *models.RouteInfo {
	key := issue.ExternalKey
	if !jiraKeyPattern.MatchString(key) {
		key = raw.digString(
			[]string{"issue", "key"},
			[]string{"key"},
		)
	}
	match := jiraKeyPattern.FindStringSubmatch(key)
	if match == nil {
		return nil
	}
	project := match[1]
	site := jiraSite(raw)

	route := fmt.Sprintf("/jira/%s/%s/%s", site, project, key)
	origin := fmt.Sprintf("https://%s.atlassian.net/browse/%s", site, key)
	return &models.RouteInfo{Route: route, OriginURL: &origin}
}

// jiraSite extrahiert das führende Host-Label aus einer Self-URL im Payload.
func jiraSite(raw rawPayload) string {
	candidate := raw.digString(
		[]string{"issue", "self"},
		[]string{"self"},
		[]string{"issue", "fields", "self"},
	)
	if candidate != "" {
		if parsed, err := url.Parse(candidate); err == nil && parsed.Hostname() != "" {
			if label, _, found := strings.Cut(parsed.Hostname(), "."); found && label != "" {
				return label
			}
		}
	}
	return jiraSiteFallback
}

// ParseRoute zerlegt eine kanonische Route in Quelle und External Key, damit
// der Viewer gezielt nachschlagen kann statt alle Issues zu scannen.
func ParseRoute(route string) (source, externalKey string, ok bool) {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	switch {
	case len(parts) == 5 && parts[0] == "gh" && parts[3] == "issues":
		if _, err := strconv.Atoi(parts[4]); err != nil {
			return "", "", false
		}
		return "github", fmt.Sprintf("%s/%s#%s", parts[1], parts[2], parts[4]), true
	case len(parts) == 4 && parts[0] == "jira" && jiraKeyPattern.MatchString(parts[3]):
		return "jira", parts[3], true
	default:
		return "", "", false
	}
}
