package models

import "time"

// IncidentNote is a free-text comment on an incident. Notes are immutable
// once written and always accompanied by a comment timeline event.
type IncidentNote struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
