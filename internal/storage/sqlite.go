package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	users          *sqliteUserRepo
	projects       *sqliteProjectRepo
	services       *sqliteServiceRepo
	rules          *sqliteRuleRepo
	incidents      *sqliteIncidentRepo
	incidentEvents *sqliteIncidentEventRepo
	incidentNotes  *sqliteIncidentNoteRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.users = &sqliteUserRepo{db: db}
	s.projects = &sqliteProjectRepo{db: db}
	s.services = &sqliteServiceRepo{db: db}
	s.rules = &sqliteRuleRepo{db: db}
	s.incidents = &sqliteIncidentRepo{db: db}
	s.incidentEvents = &sqliteIncidentEventRepo{db: db}
	s.incidentNotes = &sqliteIncidentNoteRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs pending database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// EnsureAdminUser creates a default admin if no users exist.
func (s *SQLiteStorage) EnsureAdminUser(email, password string) error {
	ctx := context.Background()

	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("bootstrap admin credentials are required on first run")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.NewUser(email, "admin", models.RoleAdmin)
	admin.ID = uuid.New().String()
	admin.PasswordHash = string(hash)
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository { return s.users }

// Projects returns the project repository.
func (s *SQLiteStorage) Projects() ProjectRepository { return s.projects }

// Services returns the service repository.
func (s *SQLiteStorage) Services() ServiceRepository { return s.services }

// Rules returns the alert rule repository.
func (s *SQLiteStorage) Rules() RuleRepository { return s.rules }

// Incidents returns the incident repository.
func (s *SQLiteStorage) Incidents() IncidentRepository { return s.incidents }

// IncidentEvents returns the incident timeline repository.
func (s *SQLiteStorage) IncidentEvents() IncidentEventRepository { return s.incidentEvents }

// IncidentNotes returns the incident note repository.
func (s *SQLiteStorage) IncidentNotes() IncidentNoteRepository { return s.incidentNotes }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
