package models

import (
	"encoding/json"
	"time"
)

// IncidentEventKind classifies timeline entries on an incident.
type IncidentEventKind string

const (
	EventRuleTriggered IncidentEventKind = "rule_triggered"
	EventMetricSpike   IncidentEventKind = "metric_spike"
	EventNewLogPattern IncidentEventKind = "new_log_pattern"
	EventComment       IncidentEventKind = "comment"
	EventAI            IncidentEventKind = "ai"
	EventStatusChanged IncidentEventKind = "status_changed"
)

// IncidentEvent is an immutable, ordered audit entry attached to an incident.
type IncidentEvent struct {
	ID         string            `json:"id"`
	IncidentID string            `json:"incident_id"`
	Kind       IncidentEventKind `json:"kind"`
	Payload    string            `json:"payload,omitempty"` // JSON-encoded structured content
	Timestamp  time.Time         `json:"timestamp"`
}

// NewIncidentEvent creates a timeline event with a JSON-encoded payload.
// A nil payload produces an event with no content.
func NewIncidentEvent(incidentID string, kind IncidentEventKind, payload any, ts time.Time) (*IncidentEvent, error) {
	ev := &IncidentEvent{
		IncidentID: incidentID,
		Kind:       kind,
		Timestamp:  ts,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		ev.Payload = string(data)
	}
	return ev, nil
}

// DecodePayload unmarshals the payload into the provided target.
func (e *IncidentEvent) DecodePayload(target any) error {
	return json.Unmarshal([]byte(e.Payload), target)
}
