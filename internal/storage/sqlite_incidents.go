package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type sqliteIncidentRepo struct {
	db *sql.DB
}

const incidentColumns = `id, project_id, service_id, rule_id, status, severity,
	started_at, resolved_at, summary, ai_summary, created_at, updated_at`

func (r *sqliteIncidentRepo) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		incident.ID, incident.ProjectID, incident.ServiceID, nullString(incident.RuleID),
		incident.Status, incident.Severity,
		incident.StartedAt, nullTime(incident.ResolvedAt),
		incident.Summary, nullString(incident.AISummary),
		incident.CreatedAt, incident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (r *sqliteIncidentRepo) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?`
	return r.scanIncident(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteIncidentRepo) Update(ctx context.Context, incident *models.Incident) error {
	query := `
		UPDATE incidents SET status = ?, severity = ?, resolved_at = ?,
			summary = ?, ai_summary = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		incident.Status, incident.Severity, nullTime(incident.ResolvedAt),
		incident.Summary, nullString(incident.AISummary), incident.UpdatedAt,
		incident.ID,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("incident %s: %w", incident.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteIncidentRepo) ListByProject(ctx context.Context, projectID string, filter IncidentFilter) ([]*models.Incident, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "project_id = ?")
	args = append(args, projectID)

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, "service_id = ?")
		args = append(args, filter.ServiceID)
	}
	if filter.RuleID != "" {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, filter.RuleID)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()
	return r.scanIncidents(rows)
}

func (r *sqliteIncidentRepo) FindOpen(ctx context.Context, projectID, ruleID, serviceID string) (*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + ` FROM incidents
		WHERE project_id = ? AND rule_id = ? AND service_id = ? AND status != ?
		ORDER BY started_at DESC LIMIT 1
	`
	return r.scanIncident(r.db.QueryRowContext(ctx, query, projectID, ruleID, serviceID, models.StatusResolved))
}

func (r *sqliteIncidentRepo) scanIncident(row rowScanner) (*models.Incident, error) {
	incident := &models.Incident{}
	var ruleID, aiSummary sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&incident.ID, &incident.ProjectID, &incident.ServiceID, &ruleID,
		&incident.Status, &incident.Severity,
		&incident.StartedAt, &resolvedAt,
		&incident.Summary, &aiSummary,
		&incident.CreatedAt, &incident.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}

	incident.RuleID = ruleID.String
	incident.AISummary = aiSummary.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		incident.ResolvedAt = &t
	}
	return incident, nil
}

func (r *sqliteIncidentRepo) scanIncidents(rows *sql.Rows) ([]*models.Incident, error) {
	var incidents []*models.Incident
	for rows.Next() {
		incident, err := r.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
