package models

import (
	"fmt"
	"time"
)

// AggregationKind selects how raw metric samples are rolled up for evaluation.
type AggregationKind string

const (
	AggAvg AggregationKind = "avg"
	AggP95 AggregationKind = "p95"
	AggP99 AggregationKind = "p99"
	AggMax AggregationKind = "max"
	AggMin AggregationKind = "min"
)

// CompareOp is the comparison applied between the aggregated value and the threshold.
type CompareOp string

const (
	OpGreaterThan  CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpLessThan     CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpEqual        CompareOp = "=="
	OpNotEqual     CompareOp = "!="
)

// Severity represents alert/incident severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertRule is a configured threshold condition over one metric, scoped to a
// project and service. Rules are evaluated once per scheduler tick; the
// condition must hold for DurationMinutes consecutive cycles before an
// incident is raised.
type AlertRule struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	ServiceID       string          `json:"service_id"`
	Name            string          `json:"name"`
	MetricName      string          `json:"metric_name"`
	Aggregation     AggregationKind `json:"aggregation"`
	Operator        CompareOp       `json:"operator"`
	Threshold       float64         `json:"threshold"`
	WindowMinutes   int             `json:"window_minutes"`
	DurationMinutes int             `json:"duration_minutes"`
	Severity        Severity        `json:"severity"`
	Enabled         bool            `json:"enabled"`
	NotifyChannels  []string        `json:"notify_channels"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewAlertRule creates an enabled AlertRule with initialized timestamps.
func NewAlertRule(projectID, serviceID, name, metricName string) *AlertRule {
	now := time.Now()
	return &AlertRule{
		ProjectID:      projectID,
		ServiceID:      serviceID,
		Name:           name,
		MetricName:     metricName,
		Aggregation:    AggAvg,
		Operator:       OpGreaterThan,
		Enabled:        true,
		NotifyChannels: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the rule definition for errors.
func (r *AlertRule) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if r.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.MetricName == "" {
		return fmt.Errorf("metric_name is required")
	}
	if !ValidAggregation(r.Aggregation) {
		return fmt.Errorf("invalid aggregation: %s", r.Aggregation)
	}
	if !ValidOperator(r.Operator) {
		return fmt.Errorf("invalid operator: %s", r.Operator)
	}
	if r.WindowMinutes < 1 {
		return fmt.Errorf("window_minutes must be positive")
	}
	if r.DurationMinutes < 1 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if !ValidSeverity(r.Severity) {
		return fmt.Errorf("invalid severity: %s", r.Severity)
	}
	return nil
}

// ValidAggregation reports whether k is a known aggregation kind.
func ValidAggregation(k AggregationKind) bool {
	switch k {
	case AggAvg, AggP95, AggP99, AggMax, AggMin:
		return true
	}
	return false
}

// ValidOperator reports whether op is a known comparison operator.
func ValidOperator(op CompareOp) bool {
	switch op {
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity converts a string to Severity, defaulting to medium.
func ParseSeverity(s string) Severity {
	switch s {
	case "low":
		return SeverityLow
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
