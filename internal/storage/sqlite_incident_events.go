package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type sqliteIncidentEventRepo struct {
	db *sql.DB
}

func (r *sqliteIncidentEventRepo) Append(ctx context.Context, event *models.IncidentEvent) error {
	query := `
		INSERT INTO incident_events (id, incident_id, kind, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.IncidentID, event.Kind, nullString(event.Payload), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert incident event: %w", err)
	}
	return nil
}

func (r *sqliteIncidentEventRepo) ListByIncident(ctx context.Context, incidentID string) ([]*models.IncidentEvent, error) {
	query := `
		SELECT id, incident_id, kind, payload, timestamp
		FROM incident_events WHERE incident_id = ? ORDER BY timestamp, id
	`
	rows, err := r.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query incident events: %w", err)
	}
	defer rows.Close()

	var events []*models.IncidentEvent
	for rows.Next() {
		event := &models.IncidentEvent{}
		var payload sql.NullString
		if err := rows.Scan(&event.ID, &event.IncidentID, &event.Kind, &payload, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan incident event: %w", err)
		}
		event.Payload = payload.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident events: %w", err)
	}
	return events, nil
}
