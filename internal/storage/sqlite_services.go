package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type sqliteServiceRepo struct {
	db *sql.DB
}

func (r *sqliteServiceRepo) Create(ctx context.Context, svc *models.Service) error {
	query := `
		INSERT INTO services (id, project_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		svc.ID, svc.ProjectID, svc.Name, svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (r *sqliteServiceRepo) GetByID(ctx context.Context, id string) (*models.Service, error) {
	query := `SELECT id, project_id, name, created_at, updated_at FROM services WHERE id = ?`
	svc := &models.Service{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&svc.ID, &svc.ProjectID, &svc.Name, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service by id: %w", err)
	}
	return svc, nil
}

func (r *sqliteServiceRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Service, error) {
	query := `SELECT id, project_id, name, created_at, updated_at FROM services WHERE project_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		svc := &models.Service{}
		if err := rows.Scan(&svc.ID, &svc.ProjectID, &svc.Name, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// Remove deletes a service and disables its alert rules in a single
// transaction. Rules are disabled rather than deleted so their incident
// history keeps a valid reference.
func (r *sqliteServiceRepo) Remove(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove service: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE alert_rules SET enabled = 0, updated_at = ? WHERE service_id = ?",
		now, id,
	); err != nil {
		return fmt.Errorf("disable service rules: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM services WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove service: %w", err)
	}
	return nil
}
