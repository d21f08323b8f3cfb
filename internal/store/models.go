package store

import (
	"time"

	"prdforge/internal/services"
)

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = services.ErrNotFound

// Status tracks how far a project has progressed.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusTranscribed Status = "transcribed"
	StatusSummarized  Status = "summarized"
	StatusGenerated   Status = "generated"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusTranscribed, StatusSummarized, StatusGenerated:
		return true
	}
	return false
}

// Project is a recording and the documents derived from it.
type Project struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	RawText    string    `json:"rawText,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	PRDContent string    `json:"prdContent,omitempty"`
	AudioURL   string    `json:"audioUrl,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Status     Status    `json:"status"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewProject holds the fields accepted on creation.
type NewProject struct {
	Title    string `json:"title"`
	RawText  string `json:"rawText,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// ProjectUpdate is a partial update; nil fields are left unchanged.
type ProjectUpdate struct {
	Title      *string `json:"title,omitempty"`
	RawText    *string `json:"rawText,omitempty"`
	Summary    *string `json:"summary,omitempty"`
	PRDContent *string `json:"prdContent,omitempty"`
	AudioURL   *string `json:"audioUrl,omitempty"`
	Status     *Status `json:"status,omitempty"`
}

func (u ProjectUpdate) empty() bool {
	return u.Title == nil && u.RawText == nil && u.Summary == nil &&
		u.PRDContent == nil && u.AudioURL == nil && u.Status == nil
}

// MiniSummary is a short summary of one window of a recording.
type MiniSummary struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Timestamp int       `json:"timestamp"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SummaryInput is one entry of a batch insert.
type SummaryInput struct {
	Timestamp int    `json:"timestamp"`
	Content   string `json:"content"`
}
