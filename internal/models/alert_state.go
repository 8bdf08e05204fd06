package models

import "time"

// AlertState is the short-lived memory of how long a rule has been
// continuously breaching, keyed by (project, rule, service). It lives in a
// TTL-bearing store: a rule that stops being evaluated self-heals without
// explicit cleanup, and loss of the record simply restarts the count at zero.
type AlertState struct {
	ProjectID              string     `json:"project_id"`
	RuleID                 string     `json:"rule_id"`
	ServiceID              string     `json:"service_id"`
	Firing                 bool       `json:"firing"`
	FirstTriggerTime       *time.Time `json:"first_trigger_time,omitempty"`
	LastEvaluationTime     time.Time  `json:"last_evaluation_time"`
	ConsecutiveFiringCount int        `json:"consecutive_firing_count"`
}

// InitialAlertState returns a non-firing state for a key.
func InitialAlertState(projectID, ruleID, serviceID string, now time.Time) AlertState {
	return AlertState{
		ProjectID:          projectID,
		RuleID:             ruleID,
		ServiceID:          serviceID,
		LastEvaluationTime: now,
	}
}

// WithConditionMet returns the successor state for a cycle whose condition
// evaluated as met: a new firing episode starts at count 1, an ongoing one
// increments the count.
func (s AlertState) WithConditionMet(now time.Time) AlertState {
	next := s
	next.Firing = true
	next.LastEvaluationTime = now
	if s.Firing {
		next.ConsecutiveFiringCount = s.ConsecutiveFiringCount + 1
	} else {
		t := now
		next.FirstTriggerTime = &t
		next.ConsecutiveFiringCount = 1
	}
	return next
}

// WithConditionNotMet returns the successor state for a cycle whose
// condition evaluated as not met: the firing streak resets regardless of
// prior state.
func (s AlertState) WithConditionNotMet(now time.Time) AlertState {
	next := s
	next.Firing = false
	next.FirstTriggerTime = nil
	next.LastEvaluationTime = now
	next.ConsecutiveFiringCount = 0
	return next
}

// StateTTLSeconds is the store TTL for an alert state record: three times
// the rule's breach duration, never less than an hour.
func StateTTLSeconds(durationMinutes int) int {
	ttl := durationMinutes * 3 * 60
	if ttl < 3600 {
		return 3600
	}
	return ttl
}
