package models

import "time"

// Service is a monitored workload within a project. Telemetry and alert
// rules are attached to a service; removing a service disables its rules
// rather than deleting them.
type Service struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewService creates a new Service with initialized timestamps.
func NewService(projectID, name string) *Service {
	now := time.Now()
	return &Service{
		ProjectID: projectID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
