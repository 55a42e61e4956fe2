package services

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"triage-copilot/models"
)

// Origin-sicheres Rendering: kein String aus einem externen Payload landet
// unescaped im HTML, und kein Link zwingt den Browser direkt auf einen
// Live-Tracker. Tracker-URLs werden auf interne Routen umgeschrieben, alles
// andere bleibt ein externer Link mit rel-Attributen.

var (
	urlPattern         = regexp.MustCompile(`https?://[^\s<>"']+`)
	githubIssuePattern = regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+)/issues/(\d+)$`)
	jiraBrowsePattern  = regexp.MustCompile(`^https?://([a-z0-9-]+)\.atlassian\.net/browse/([A-Za-z][A-Za-z0-9]*-\d+)$`)
	paragraphSplit     = regexp.MustCompile(`\n[ \t]*\n`)
)

// LinkifyText rendert Freitext zu sicherem HTML. Leerzeilen werden zu
// Absätzen, einzelne Zeilenumbrüche zu <br>.
func LinkifyText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var out strings.Builder
	for _, paragraph := range paragraphSplit.Split(text, -1) {
		paragraph = strings.Trim(paragraph, "\n")
		if strings.TrimSpace(paragraph) == "" {
			continue
		}
		out.WriteString("<p>")
		lines := strings.Split(paragraph, "\n")
		for i, line := range lines {
			if i > 0 {
				out.WriteString("<br>")
			}
			out.WriteString(linkifyLine(line))
		}
		out.WriteString("</p>")
	}
	return out.String()
}

func linkifyLine(line string) string {
	var out strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(line, -1) {
		out.WriteString(html.EscapeString(line[last:loc[0]]))
		rawURL := line[loc[0]:loc[1]]
		// Satzzeichen am Ende gehören nicht zur URL
		trimmed := strings.TrimRight(rawURL, ".,;:!?)")
		out.WriteString(renderLink(trimmed))
		out.WriteString(html.EscapeString(rawURL[len(trimmed):]))
		last = loc[1]
	}
	out.WriteString(html.EscapeString(line[last:]))
	return out.String()
}

// renderLink schreibt Tracker-Issue-URLs auf interne Routen um; alle anderen
// URLs bleiben externe Links mit nofollow. Eine URL, die wie ein
// Tracker-Link aussieht, aber nicht vollständig parst, bleibt extern.
func renderLink(rawURL string) string {
	if m := githubIssuePattern.FindStringSubmatch(rawURL); m != nil {
		route := fmt.Sprintf("/gh/%s/%s/issues/%s", m[1], m[2], m[3])
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(route), html.EscapeString(route))
	}
	if m := jiraBrowsePattern.FindStringSubmatch(rawURL); m != nil {
		key := m[2]
		project := key[:strings.Index(key, "-")]
		route := fmt.Sprintf("/jira/%s/%s/%s", m[1], project, key)
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(route), html.EscapeString(route))
	}
	escaped := html.EscapeString(rawURL)
	return fmt.Sprintf(`<a href="%s" rel="nofollow noopener noreferrer">%s</a>`, escaped, escaped)
}

// RenderIssue baut den origin-sicheren Viewer-Datensatz eines Issues.
// Rückgabe nil, wenn keine Route ableitbar ist.
func RenderIssue(issue *models.Issue, labels []string) *models.ViewerRecord {
	info := BuildRoute(issue)
	if info == nil {
		return nil
	}
	raw := parseRaw(issue.RawJSON)

	var status *string
	if issue.Status != "" {
		s := issue.Status
		status = &s
	}

	createdAt := issue.CreatedAt
	record := &models.ViewerRecord{
		ID:          issue.ID,
		Source:      issue.Source,
		Route:       info.Route,
		OriginURL:   info.OriginURL,
		Title:       issue.Title,
		Body:        issue.Body,
		BodyHTML:    LinkifyText(issue.Body),
		Repo:        issue.Repo,
		Project:     issue.Project,
		Status:      status,
		Priority:    extractPriority(raw),
		Labels:      dedupeLabels(labels),
		CreatedAt:   &createdAt,
		Determinism: determinismBanner(issue.Source, raw),
		Comments:    extractComments(raw),
	}
	return record
}

// extractPriority prüft die bekannten Payload-Formen der Reihe nach.
func extractPriority(raw rawPayload) *string {
	candidates := [][]string{
		{"issue", "priority"},
		{"issue", "fields", "priority", "name"},
		{"fields", "priority", "name"},
		{"priority"},
	}
	for _, path := range candidates {
		switch v := raw.dig(path...).(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				s := strings.TrimSpace(v)
				return &s
			}
		case map[string]interface{}:
			if name, ok := v["name"].(string); ok && strings.TrimSpace(name) != "" {
				s := strings.TrimSpace(name)
				return &s
			}
		}
	}
	return nil
}

// extractComments versucht die möglichen Kommentar-Container der Reihe nach;
// der erste nicht-leere gewinnt.
func extractComments(raw rawPayload) []models.ViewerComment {
	containers := [][]string{
		{"comments"},
		{"issue", "comments"},
		{"fields", "comment", "comments"},
	}
	for _, path := range containers {
		list, ok := raw.dig(path...).([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		comments := make([]models.ViewerComment, 0, len(list))
		for _, entry := range list {
			m, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			body, _ := m["body"].(string)
			comments = append(comments, models.ViewerComment{
				Author:    commentAuthor(m),
				Body:      body,
				BodyHTML:  LinkifyText(body),
				CreatedAt: commentTimestamp(m),
			})
		}
		if len(comments) > 0 {
			return comments
		}
	}
	return []models.ViewerComment{}
}

func commentAuthor(m map[string]interface{}) string {
	if s, ok := m["author"].(string); ok {
		return s
	}
	if author, ok := m["author"].(map[string]interface{}); ok {
		if s, ok := author["displayName"].(string); ok {
			return s
		}
		if s, ok := author["login"].(string); ok {
			return s
		}
	}
	if user, ok := m["user"].(map[string]interface{}); ok {
		if s, ok := user["login"].(string); ok {
			return s
		}
	}
	return ""
}

func commentTimestamp(m map[string]interface{}) string {
	for _, key := range []string{"created_at", "created", "timestamp"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// determinismBanner fasst die Provenienz des Datensatzes zusammen.
// Seed und Generierungszeit erscheinen nur, wenn der Payload sie trägt.
func determinismBanner(source string, raw rawPayload) string {
	banner := fmt.Sprintf("Synthetic. Source: %s.", source)
	seedPaths := [][]string{
		{"determinism", "seed"},
		{"meta", "seed"},
		{"seed"},
	}
	for _, path := range seedPaths {
		switch v := raw.dig(path...).(type) {
		case float64:
			banner += fmt.Sprintf(" Seed: %d.", int(v))
		case string:
			if v != "" {
				banner += fmt.Sprintf(" Seed: %s.", v)
			} else {
				continue
			}
		default:
			continue
		}
		break
	}
	generated := raw.digString(
		[]string{"determinism", "generated_at"},
		[]string{"meta", "generated_at"},
		[]string{"generated_at"},
	)
	if generated != "" {
		banner += fmt.Sprintf(" Generated: %s.", generated)
	}
	return banner
}

func dedupeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
