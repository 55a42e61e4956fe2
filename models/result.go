package models

import "time"

// RetrievalResult ist ein einzelner Treffer aus der Vektor- oder Hybrid-Suche.
type RetrievalResult struct {
	IssueID   uint    `json:"issue_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
	Route     string  `json:"canonical_route,omitempty"`
	OriginURL *string `json:"origin_url"`
}

// TriageProposal ist der Triage-Vorschlag des Proposal Assemblers.
type TriageProposal struct {
	Labels             []string          `json:"labels"`
	AssigneeCandidates []string          `json:"assignee_candidates"`
	Summary            string            `json:"summary"`
	Similar            []RetrievalResult `json:"similar"`
}

// RouteInfo beschreibt die kanonische interne Adresse eines Issues.
type RouteInfo struct {
	Route     string  `json:"route"`
	OriginURL *string `json:"origin_url"`
}

// ViewerComment ist ein gerendeter Kommentar aus dem Roh-Payload.
type ViewerComment struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	BodyHTML  string `json:"body_html"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ViewerRecord ist die origin-sichere Darstellung eines Issues.
type ViewerRecord struct {
	ID          uint            `json:"id"`
	Source      string          `json:"source"`
	Route       string          `json:"route"`
	OriginURL   *string         `json:"origin_url"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	BodyHTML    string          `json:"body_html"`
	Repo        *string         `json:"repo"`
	Project     *string         `json:"project"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	Labels      []string        `json:"labels"`
	CreatedAt   *time.Time      `json:"created_at"`
	Determinism string          `json:"determinism"`
	Comments    []ViewerComment `json:"comments"`
}

// ViewerSearchItem ist ein Treffer der Viewer-Suche (ohne gerenderten Body).
type ViewerSearchItem struct {
	ID        uint       `json:"id"`
	Source    string     `json:"source"`
	Route     string     `json:"route"`
	OriginURL *string    `json:"origin_url"`
	Title     string     `json:"title"`
	Status    *string    `json:"status"`
	Priority  *string    `json:"priority"`
	Labels    []string   `json:"labels"`
	Repo      *string    `json:"repo"`
	Project   *string    `json:"project"`
	CreatedAt *time.Time `json:"created_at"`
}

// ViewerFilters sind Inklusionslisten für die Viewer-Suche.
type ViewerFilters struct {
	Query      string
	Sources    []string
	Repos      []string
	Projects   []string
	Labels     []string
	States     []string
	Priorities []string
}

// EmbedJob ist das Queue-Payload für den Indexing Worker.
type EmbedJob struct {
	IssueID uint `json:"issue_id"`
	Force   bool `json:"force"`
}
