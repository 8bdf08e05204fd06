package models

import (
	"strings"
	"testing"
)

func validRule() *AlertRule {
	r := NewAlertRule("p1", "s1", "high-latency", "http_request_duration_ms")
	r.Aggregation = AggP95
	r.Operator = OpGreaterThan
	r.Threshold = 250
	r.WindowMinutes = 5
	r.DurationMinutes = 3
	r.Severity = SeverityHigh
	return r
}

func TestAlertRuleValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AlertRule)
		errMsg string
	}{
		{"valid", func(r *AlertRule) {}, ""},
		{"missing project", func(r *AlertRule) { r.ProjectID = "" }, "project_id is required"},
		{"missing service", func(r *AlertRule) { r.ServiceID = "" }, "service_id is required"},
		{"missing name", func(r *AlertRule) { r.Name = "" }, "name is required"},
		{"missing metric", func(r *AlertRule) { r.MetricName = "" }, "metric_name is required"},
		{"unknown aggregation", func(r *AlertRule) { r.Aggregation = "median" }, "invalid aggregation"},
		{"unknown operator", func(r *AlertRule) { r.Operator = "<>" }, "invalid operator"},
		{"zero window", func(r *AlertRule) { r.WindowMinutes = 0 }, "window_minutes must be positive"},
		{"negative window", func(r *AlertRule) { r.WindowMinutes = -5 }, "window_minutes must be positive"},
		{"zero duration", func(r *AlertRule) { r.DurationMinutes = 0 }, "duration_minutes must be positive"},
		{"unknown severity", func(r *AlertRule) { r.Severity = "urgent" }, "invalid severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(r)
			err := r.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestStateTTLSeconds(t *testing.T) {
	tests := []struct {
		durationMinutes int
		want            int
	}{
		{1, 3600},
		{3, 3600},
		{20, 3600},
		{21, 3780},
		{60, 10800},
	}
	for _, tt := range tests {
		if got := StateTTLSeconds(tt.durationMinutes); got != tt.want {
			t.Errorf("StateTTLSeconds(%d) = %d, want %d", tt.durationMinutes, got, tt.want)
		}
	}
}
