package models

import (
	"time"

	"gorm.io/datatypes"
)

// Issue repräsentiert ein normalisiertes Ticket aus einem externen Tracker.
// (Source, ExternalKey) ist der stabile Upsert-Schlüssel: erneutes Einspielen
// desselben externen Items aktualisiert die Zeile, dupliziert sie nie.
type Issue struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Source      string `json:"source" gorm:"index:idx_issues_source_key,unique;not null"` // "github" oder "jira"
	ExternalKey string `json:"external_key" gorm:"index:idx_issues_source_key,unique;size:512;not null"`

	Title   string  `json:"title"`
	Body    string  `json:"body" gorm:"type:text"`
	Repo    *string `json:"repo,omitempty" gorm:"index"`    // z.B. "org/repo", nur GitHub
	Project *string `json:"project,omitempty" gorm:"index"` // z.B. "ABC", nur Jira
	Status  string  `json:"status,omitempty" gorm:"index"`

	// Roh-Payload für Rendering und Rückreferenzen (Kommentare, Priorität etc.)
	RawJSON datatypes.JSON `json:"raw_json" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (Issue) TableName() string {
	return "issues"
}

// Label gehört n:1 zu einem Issue und wird bei jeder Re-Ingestion komplett
// ersetzt (delete-then-insert), nie partiell gepatcht.
type Label struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	IssueID uint   `json:"issue_id" gorm:"index;not null"`
	Label   string `json:"label" gorm:"size:256;not null"`
	Source  string `json:"source"`
}

func (Label) TableName() string { return "labels" }
