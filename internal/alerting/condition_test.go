package alerting

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

func points(values ...float64) []models.MetricPoint {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pts := make([]models.MetricPoint, len(values))
	for i, v := range values {
		pts[i] = models.MetricPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return pts
}

func TestCompareThreshold(t *testing.T) {
	cases := []struct {
		name      string
		value     float64
		op        models.CompareOp
		threshold float64
		want      bool
	}{
		{"gt true", 150, models.OpGreaterThan, 100, true},
		{"gt false at boundary", 100, models.OpGreaterThan, 100, false},
		{"gte true at boundary", 100, models.OpGreaterEqual, 100, true},
		{"lt true", 50, models.OpLessThan, 100, true},
		{"lte false", 101, models.OpLessEqual, 100, false},
		{"eq within epsilon", 100.00005, models.OpEqual, 100, true},
		{"eq outside epsilon", 100.001, models.OpEqual, 100, false},
		{"neq outside epsilon", 100.001, models.OpNotEqual, 100, true},
		{"neq within epsilon", 100.00005, models.OpNotEqual, 100, false},
		{"unknown op", 150, models.CompareOp("~"), 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := compareThreshold(tc.value, tc.op, tc.threshold); got != tc.want {
				t.Errorf("compareThreshold(%v, %q, %v) = %v, want %v",
					tc.value, tc.op, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestConditionMet(t *testing.T) {
	rule := &models.AlertRule{Operator: models.OpGreaterThan, Threshold: 100}

	value, met := conditionMet(points(120, 140, 160), rule)
	if !met || value != 140 {
		t.Errorf("got (%v, %v), want (140, true)", value, met)
	}

	// An empty query result never breaches.
	if _, met := conditionMet(nil, rule); met {
		t.Error("empty result should not meet the condition")
	}

	value, met = conditionMet(points(90, 100), rule)
	if met || value != 95 {
		t.Errorf("got (%v, %v), want (95, false)", value, met)
	}
}
