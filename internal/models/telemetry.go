package models

import "time"

// MetricPoint is a single (timestamp, value) sample in a query result series.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSample is one ingested metric measurement.
type MetricSample struct {
	ProjectID string    `json:"project_id"`
	ServiceID string    `json:"service_id"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// LogLevel represents log severity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one ingested log record.
type LogEntry struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"project_id"`
	ServiceID string    `json:"service_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
