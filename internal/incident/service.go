// Package incident manages the incident lifecycle: creation, guarded
// status transitions, timeline recording and notes.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// ErrNotFound is returned when an incident does not exist or does not
// belong to the requested project.
var ErrNotFound = errors.New("incident not found")

// Service coordinates incident persistence, the status state machine and
// the append-only timeline.
type Service struct {
	store storage.Storage
	now   func() time.Time
}

// NewService creates an incident service.
func NewService(store storage.Storage) *Service {
	return &Service{store: store, now: time.Now}
}

// Create opens a new incident and records its rule_triggered timeline
// event. RuleID may be empty for manually created incidents.
func (s *Service) Create(ctx context.Context, projectID, serviceID, ruleID string,
	severity models.Severity, summary string) (*models.Incident, error) {

	incident := models.NewIncident(projectID, serviceID, ruleID, severity, summary, s.now())
	incident.ID = uuid.New().String()

	if err := s.store.Incidents().Create(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if err := s.appendEvent(ctx, incident.ID, models.EventRuleTriggered, map[string]string{
		"rule_id":  ruleID,
		"severity": string(severity),
	}); err != nil {
		return nil, err
	}

	return incident, nil
}

// Get returns an incident scoped to a project.
func (s *Service) Get(ctx context.Context, projectID, incidentID string) (*models.Incident, error) {
	incident, err := s.store.Incidents().GetByID(ctx, incidentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if incident.ProjectID != projectID {
		return nil, ErrNotFound
	}
	return incident, nil
}

// List returns a project's incidents with optional filters.
func (s *Service) List(ctx context.Context, projectID string, filter storage.IncidentFilter) ([]*models.Incident, error) {
	return s.store.Incidents().ListByProject(ctx, projectID, filter)
}

// UpdateStatus transitions an incident through the state machine. Illegal
// transitions fail with *models.TransitionError and leave the incident
// unchanged. Every successful transition appends a status_changed event.
func (s *Service) UpdateStatus(ctx context.Context, projectID, incidentID string,
	next models.IncidentStatus) (*models.Incident, error) {

	incident, err := s.Get(ctx, projectID, incidentID)
	if err != nil {
		return nil, err
	}

	old := incident.Status
	if err := incident.TransitionAt(next, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.Incidents().Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("persist incident status: %w", err)
	}

	if err := s.appendEvent(ctx, incident.ID, models.EventStatusChanged, map[string]string{
		"old_status": string(old),
		"new_status": string(next),
	}); err != nil {
		return nil, err
	}

	return incident, nil
}

// ChangeSeverity updates severity independently of the state machine.
func (s *Service) ChangeSeverity(ctx context.Context, projectID, incidentID string,
	severity models.Severity) (*models.Incident, error) {

	incident, err := s.Get(ctx, projectID, incidentID)
	if err != nil {
		return nil, err
	}
	if err := incident.ChangeSeverity(severity); err != nil {
		return nil, err
	}
	if err := s.store.Incidents().Update(ctx, incident); err != nil {
		return nil, fmt.Errorf("persist incident severity: %w", err)
	}
	return incident, nil
}

// AddNote attaches an immutable note plus its comment timeline event.
func (s *Service) AddNote(ctx context.Context, projectID, incidentID, authorID, content string) (*models.IncidentNote, error) {
	if content == "" {
		return nil, fmt.Errorf("note content is required")
	}

	incident, err := s.Get(ctx, projectID, incidentID)
	if err != nil {
		return nil, err
	}

	note := &models.IncidentNote{
		ID:         uuid.New().String(),
		IncidentID: incident.ID,
		AuthorID:   authorID,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if err := s.store.IncidentNotes().Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	if err := s.appendEvent(ctx, incident.ID, models.EventComment, map[string]string{
		"note_id":   note.ID,
		"author_id": authorID,
	}); err != nil {
		return nil, err
	}

	return note, nil
}

// Timeline returns the incident's ordered timeline events.
func (s *Service) Timeline(ctx context.Context, projectID, incidentID string) ([]*models.IncidentEvent, error) {
	if _, err := s.Get(ctx, projectID, incidentID); err != nil {
		return nil, err
	}
	return s.store.IncidentEvents().ListByIncident(ctx, incidentID)
}

// Notes returns the incident's notes in creation order.
func (s *Service) Notes(ctx context.Context, projectID, incidentID string) ([]*models.IncidentNote, error) {
	if _, err := s.Get(ctx, projectID, incidentID); err != nil {
		return nil, err
	}
	return s.store.IncidentNotes().ListByIncident(ctx, incidentID)
}

// FindOrCreateOpen returns the open incident for a (project, rule, service)
// key, creating one if none exists. The boolean reports whether a new
// incident was created, so callers never have to infer creation from
// timestamp equality.
//
// This is a check-then-act sequence, not an atomic constraint: two
// concurrent evaluations of the same key can race. The evaluation queue
// serializes per-rule work in normal operation; a redelivered duplicate
// task can, in the worst case, create a second incident.
func (s *Service) FindOrCreateOpen(ctx context.Context, projectID, serviceID, ruleID string,
	severity models.Severity, summary string) (*models.Incident, bool, error) {

	existing, err := s.store.Incidents().FindOpen(ctx, projectID, ruleID, serviceID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("find open incident: %w", err)
	}

	incident, err := s.Create(ctx, projectID, serviceID, ruleID, severity, summary)
	if err != nil {
		return nil, false, err
	}
	return incident, true, nil
}

// ResolveOpen transitions the open incident for a key to resolved, if one
// exists. Returns ErrNotFound when there is nothing to resolve.
func (s *Service) ResolveOpen(ctx context.Context, projectID, ruleID, serviceID string) (*models.Incident, error) {
	incident, err := s.store.Incidents().FindOpen(ctx, projectID, ruleID, serviceID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	return s.UpdateStatus(ctx, projectID, incident.ID, models.StatusResolved)
}

// TouchOpen stamps an open incident's updated_at to show the underlying
// alert is still firing. Resolved incidents are not touched.
func (s *Service) TouchOpen(ctx context.Context, incident *models.Incident) error {
	if !incident.IsOpen() {
		return fmt.Errorf("cannot touch resolved incident %s", incident.ID)
	}
	incident.Touch(s.now())
	if err := s.store.Incidents().Update(ctx, incident); err != nil {
		return fmt.Errorf("touch incident: %w", err)
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, incidentID string, kind models.IncidentEventKind, payload any) error {
	event, err := models.NewIncidentEvent(incidentID, kind, payload, s.now())
	if err != nil {
		return fmt.Errorf("build %s event: %w", kind, err)
	}
	event.ID = uuid.New().String()
	if err := s.store.IncidentEvents().Append(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", kind, err)
	}
	return nil
}
