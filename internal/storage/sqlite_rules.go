package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const ruleColumns = `id, project_id, service_id, name, metric_name, aggregation, operator,
	threshold, window_minutes, duration_minutes, severity, enabled, notify_json,
	created_at, updated_at`

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	notifyJSON, err := json.Marshal(rule.NotifyChannels)
	if err != nil {
		return fmt.Errorf("marshal notify channels: %w", err)
	}

	query := `
		INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.ProjectID, rule.ServiceID, rule.Name, rule.MetricName,
		rule.Aggregation, rule.Operator, rule.Threshold,
		rule.WindowMinutes, rule.DurationMinutes, rule.Severity,
		boolToInt(rule.Enabled), string(notifyJSON),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`
	return r.scanRule(r.db.QueryRowContext(ctx, query, id))
}

func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	notifyJSON, err := json.Marshal(rule.NotifyChannels)
	if err != nil {
		return fmt.Errorf("marshal notify channels: %w", err)
	}

	query := `
		UPDATE alert_rules SET name = ?, metric_name = ?, aggregation = ?, operator = ?,
			threshold = ?, window_minutes = ?, duration_minutes = ?, severity = ?,
			enabled = ?, notify_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.MetricName, rule.Aggregation, rule.Operator,
		rule.Threshold, rule.WindowMinutes, rule.DurationMinutes, rule.Severity,
		boolToInt(rule.Enabled), string(notifyJSON), rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

func (r *sqliteRuleRepo) ListByProject(ctx context.Context, projectID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE project_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()
	return r.scanRules(rows)
}

func (r *sqliteRuleRepo) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE enabled = 1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enabled alert rules: %w", err)
	}
	defer rows.Close()
	return r.scanRules(rows)
}

func (r *sqliteRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_rules SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set alert rule enabled: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert rule %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sqliteRuleRepo) scanRule(row rowScanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var enabled int
	var notifyJSON string

	err := row.Scan(
		&rule.ID, &rule.ProjectID, &rule.ServiceID, &rule.Name, &rule.MetricName,
		&rule.Aggregation, &rule.Operator, &rule.Threshold,
		&rule.WindowMinutes, &rule.DurationMinutes, &rule.Severity,
		&enabled, &notifyJSON,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert rule: %w", err)
	}

	rule.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(notifyJSON), &rule.NotifyChannels); err != nil {
		return nil, fmt.Errorf("unmarshal notify channels: %w", err)
	}
	return rule, nil
}

func (r *sqliteRuleRepo) scanRules(rows *sql.Rows) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rules: %w", err)
	}
	return rules, nil
}
