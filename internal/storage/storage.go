// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStateNotFound is returned when no alert state exists for a key.
// Absence is an expected condition for alert state, distinct from store
// failures; evaluation starts from the initial state.
var ErrStateNotFound = errors.New("alert state not found")

// Storage is the main interface for metadata database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// EnsureAdminUser creates a default admin if no users exist.
	EnsureAdminUser(email, password string) error

	// Repository accessors
	Users() UserRepository
	Projects() ProjectRepository
	Services() ServiceRepository
	Rules() RuleRepository
	Incidents() IncidentRepository
	IncidentEvents() IncidentEventRepository
	IncidentNotes() IncidentNoteRepository
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// ProjectRepository defines operations for project management.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	List(ctx context.Context) ([]*models.Project, error)
}

// ServiceRepository defines operations for service management.
// Remove disables the service's alert rules instead of deleting them.
type ServiceRepository interface {
	Create(ctx context.Context, svc *models.Service) error
	GetByID(ctx context.Context, id string) (*models.Service, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Service, error)
	Remove(ctx context.Context, id string) error
}

// RuleRepository defines operations for alert rule management.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	Update(ctx context.Context, rule *models.AlertRule) error
	ListByProject(ctx context.Context, projectID string) ([]*models.AlertRule, error)
	ListEnabled(ctx context.Context) ([]*models.AlertRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	Status    models.IncidentStatus
	Severity  models.Severity
	ServiceID string
	RuleID    string
}

// IncidentRepository defines operations for incident persistence.
// Incidents are never deleted.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id string) (*models.Incident, error)
	Update(ctx context.Context, incident *models.Incident) error
	ListByProject(ctx context.Context, projectID string, filter IncidentFilter) ([]*models.Incident, error)
	// FindOpen returns the currently non-resolved incident for a
	// (project, rule, service) key, or ErrNotFound.
	FindOpen(ctx context.Context, projectID, ruleID, serviceID string) (*models.Incident, error)
}

// IncidentEventRepository stores append-only incident timeline entries.
type IncidentEventRepository interface {
	Append(ctx context.Context, event *models.IncidentEvent) error
	ListByIncident(ctx context.Context, incidentID string) ([]*models.IncidentEvent, error)
}

// IncidentNoteRepository stores immutable incident notes.
type IncidentNoteRepository interface {
	Create(ctx context.Context, note *models.IncidentNote) error
	ListByIncident(ctx context.Context, incidentID string) ([]*models.IncidentNote, error)
}

// StateStore holds one volatile hysteresis record per (project, rule,
// service) key. Records expire after their TTL if not refreshed.
type StateStore interface {
	Load(ctx context.Context, projectID, ruleID, serviceID string) (models.AlertState, error)
	Save(ctx context.Context, state models.AlertState, ttlSeconds int) error
}

// MetricQuerier answers aggregated metric queries for the evaluator and
// the HTTP API.
type MetricQuerier interface {
	Query(ctx context.Context, projectID, metricName string, agg models.AggregationKind,
		serviceID string, from, to time.Time) ([]models.MetricPoint, error)
}

// LogFilter narrows log searches.
type LogFilter struct {
	ServiceID string
	Level     models.LogLevel
	Contains  string
	From      time.Time
	To        time.Time
	Limit     int
}

// TelemetryStorage stores and queries raw telemetry (metrics and logs).
type TelemetryStorage interface {
	Open() error
	Close() error
	Migrate() error
	Ping(ctx context.Context) error

	WriteMetrics(ctx context.Context, samples []models.MetricSample) error
	WriteLogs(ctx context.Context, entries []models.LogEntry) error

	MetricQuerier
	SearchLogs(ctx context.Context, projectID string, filter LogFilter) ([]models.LogEntry, error)
}
