package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type sqliteIncidentNoteRepo struct {
	db *sql.DB
}

func (r *sqliteIncidentNoteRepo) Create(ctx context.Context, note *models.IncidentNote) error {
	query := `
		INSERT INTO incident_notes (id, incident_id, author_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		note.ID, note.IncidentID, note.AuthorID, note.Content, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident note: %w", err)
	}
	return nil
}

func (r *sqliteIncidentNoteRepo) ListByIncident(ctx context.Context, incidentID string) ([]*models.IncidentNote, error) {
	query := `
		SELECT id, incident_id, author_id, content, created_at
		FROM incident_notes WHERE incident_id = ? ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query incident notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.IncidentNote
	for rows.Next() {
		note := &models.IncidentNote{}
		if err := rows.Scan(&note.ID, &note.IncidentID, &note.AuthorID, &note.Content, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident notes: %w", err)
	}
	return notes, nil
}
