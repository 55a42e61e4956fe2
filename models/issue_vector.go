package models

import (
	"time"
)

// IssueVector hält genau ein Embedding pro Issue. Konfliktziel beim Upsert
// ist issue_id allein: pro Issue ist immer nur der Vektor eines Modells
// gespeichert, auch wenn die Spalte model mitgeführt wird.
type IssueVector struct {
	IssueID   uint      `json:"issue_id" gorm:"primaryKey;autoIncrement:false"`
	Embedding Vector    `json:"embedding" gorm:"type:vector"`
	Model     string    `json:"model" gorm:"index;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IssueVector) TableName() string { return "issue_vectors" }

// SimilarIssue ist eine abgeleitete Top-K-Nachbarkante. Reiner Cache: darf
// jederzeit neu berechnet oder verworfen werden, nie autoritativ.
type SimilarIssue struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	IssueID    uint      `json:"issue_id" gorm:"index:idx_similar_edge,unique;not null"`
	NeighborID uint      `json:"neighbor_id" gorm:"index:idx_similar_edge,unique;not null"`
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}

func (SimilarIssue) TableName() string { return "similar_issues" }
