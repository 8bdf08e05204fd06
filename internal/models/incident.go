package models

import (
	"fmt"
	"time"
)

// IncidentStatus is the lifecycle status of an incident.
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusResolved      IncidentStatus = "resolved"
)

// ValidStatus reports whether s is a known incident status.
func ValidStatus(s IncidentStatus) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next.
// Self-transitions are allowed as no-ops; resolved is terminal and
// nothing may move back to open.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusOpen:
		return next == StatusInvestigating || next == StatusResolved
	case StatusInvestigating:
		return next == StatusResolved
	case StatusResolved:
		return false
	}
	return false
}

// TransitionError is returned when an incident status change violates the
// state machine.
type TransitionError struct {
	From IncidentStatus
	To   IncidentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition incident from %s to %s", e.From, e.To)
}

// Incident is the actionable record created when a rule fires long enough.
// RuleID is empty for manually created incidents. Incidents are never
// deleted; resolution is terminal.
type Incident struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	ServiceID  string         `json:"service_id"`
	RuleID     string         `json:"rule_id,omitempty"`
	Status     IncidentStatus `json:"status"`
	Severity   Severity       `json:"severity"`
	StartedAt  time.Time      `json:"started_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Summary    string         `json:"summary"`
	AISummary  string         `json:"ai_summary,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewIncident creates an open incident stamped at now. The caller picks
// the clock so evaluation-driven incidents carry the evaluation time.
func NewIncident(projectID, serviceID, ruleID string, severity Severity,
	summary string, now time.Time) *Incident {
	return &Incident{
		ProjectID: projectID,
		ServiceID: serviceID,
		RuleID:    ruleID,
		Status:    StatusOpen,
		Severity:  severity,
		StartedAt: now,
		Summary:   summary,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOpen reports whether the incident has not been resolved.
func (i *Incident) IsOpen() bool {
	return i.Status != StatusResolved
}

// TransitionTo moves the incident to a new status, enforcing the state
// machine. The first transition into resolved stamps ResolvedAt;
// re-asserting resolved does not overwrite it.
func (i *Incident) TransitionTo(next IncidentStatus) error {
	return i.TransitionAt(next, time.Now())
}

// TransitionAt is TransitionTo with an explicit clock for deterministic tests.
func (i *Incident) TransitionAt(next IncidentStatus, now time.Time) error {
	if !i.Status.CanTransitionTo(next) {
		return &TransitionError{From: i.Status, To: next}
	}
	i.Status = next
	i.UpdatedAt = now
	if next == StatusResolved && i.ResolvedAt == nil {
		t := now
		i.ResolvedAt = &t
	}
	return nil
}

// ChangeSeverity updates severity independently of status.
func (i *Incident) ChangeSeverity(s Severity) error {
	if !ValidSeverity(s) {
		return fmt.Errorf("invalid severity: %s", s)
	}
	i.Severity = s
	i.UpdatedAt = time.Now()
	return nil
}

// Touch stamps UpdatedAt to show liveness of an ongoing incident without a
// status change.
func (i *Incident) Touch(now time.Time) {
	i.UpdatedAt = now
}
