package alerting

import (
	"math"

	"github.com/good-yellow-bee/pulsewatch/internal/models"
)

// floatEpsilon is the tolerance for equality comparisons on aggregated
// metric values.
const floatEpsilon = 1e-4

// reduceMean collapses the queried series to a single value: the
// arithmetic mean of the returned points.
func reduceMean(points []models.MetricPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

// compareThreshold applies the rule's operator to an aggregated value.
// Equality uses an epsilon tolerance; the ordered operators compare
// exactly.
func compareThreshold(value float64, op models.CompareOp, threshold float64) bool {
	switch op {
	case models.OpGreaterThan:
		return value > threshold
	case models.OpGreaterEqual:
		return value >= threshold
	case models.OpLessThan:
		return value < threshold
	case models.OpLessEqual:
		return value <= threshold
	case models.OpEqual:
		return math.Abs(value-threshold) < floatEpsilon
	case models.OpNotEqual:
		return math.Abs(value-threshold) >= floatEpsilon
	default:
		return false
	}
}

// conditionMet reports whether a query result breaches the rule. An empty
// result is never a breach.
func conditionMet(points []models.MetricPoint, rule *models.AlertRule) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	value := reduceMean(points)
	return value, compareThreshold(value, rule.Operator, rule.Threshold)
}
