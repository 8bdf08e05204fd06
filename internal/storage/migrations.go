package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Users table
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'viewer',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Projects table
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				description TEXT,
				api_key_hash TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Services table
			CREATE TABLE IF NOT EXISTS services (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (project_id, name),
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);

			-- Alert rules table
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				service_id TEXT NOT NULL,
				name TEXT NOT NULL,
				metric_name TEXT NOT NULL,
				aggregation TEXT NOT NULL,
				operator TEXT NOT NULL,
				threshold REAL NOT NULL,
				window_minutes INTEGER NOT NULL,
				duration_minutes INTEGER NOT NULL,
				severity TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				notify_json TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
			CREATE INDEX IF NOT EXISTS idx_alert_rules_project ON alert_rules(project_id);

			-- Incidents table
			CREATE TABLE IF NOT EXISTS incidents (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				service_id TEXT NOT NULL,
				rule_id TEXT,
				status TEXT NOT NULL DEFAULT 'open',
				severity TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				resolved_at DATETIME,
				summary TEXT NOT NULL,
				ai_summary TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_incidents_open_key
				ON incidents(project_id, rule_id, service_id, status);
			CREATE INDEX IF NOT EXISTS idx_incidents_project ON incidents(project_id, started_at);

			-- Incident timeline events (append-only)
			CREATE TABLE IF NOT EXISTS incident_events (
				id TEXT PRIMARY KEY,
				incident_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				payload TEXT,
				timestamp DATETIME NOT NULL,
				FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_incident_events_incident
				ON incident_events(incident_id, timestamp);

			-- Incident notes (immutable)
			CREATE TABLE IF NOT EXISTS incident_notes (
				id TEXT PRIMARY KEY,
				incident_id TEXT NOT NULL,
				author_id TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_incident_notes_incident
				ON incident_notes(incident_id, created_at);
		`,
	},
}

// runMigrations applies pending migrations in order.
func runMigrations(db *sql.DB) error {
	// Create migrations tracking table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read current migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
