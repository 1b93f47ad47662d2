package monitor

import (
	"fmt"
	"sort"
)

// Violation is one metric over its budget.
type Violation struct {
	Metric  string `json:"metric"`
	Message string `json:"message"`
}

// Compliance is the outcome of evaluating metrics against a budget.
type Compliance struct {
	Compliant  bool        `json:"compliant"`
	Violations []Violation `json:"violations"`
}

// Evaluate compares metrics with budget. A metric violates when its value is
// strictly greater than its threshold. Metrics without a threshold and
// thresholds without a metric are ignored. Violations are sorted by metric.
func Evaluate(metrics map[string]float64, budget Budget) Compliance {
	violations := []Violation{}
	for metric, value := range metrics {
		threshold, ok := budget[metric]
		if !ok || !(value > threshold) {
			continue
		}
		violations = append(violations, Violation{
			Metric:  metric,
			Message: fmt.Sprintf("%s exceeds budget", metric),
		})
	}
	sort.Slice(violations, func(i, j int) bool { return violations[i].Metric < violations[j].Metric })
	return Compliance{Compliant: len(violations) == 0, Violations: violations}
}
