package monitor

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/validation"
)

// Budget maps a metric name to its threshold. A metric violates its budget
// when its value is strictly greater than the threshold.
type Budget map[string]float64

// Clone returns a copy of b.
func (b Budget) Clone() Budget {
	out := make(Budget, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Metrics returns the budgeted metric names, sorted.
func (b Budget) Metrics() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Limits are the execution limits that live next to the budget table.
type Limits struct {
	// MaxParallelTasks is the default scheduler cap; 0 means unset.
	MaxParallelTasks int `yaml:"max_parallel_tasks" json:"max_parallel_tasks"`
}

type budgetFile struct {
	PerformanceBudgets map[string]any `yaml:"performance_budgets"`
	TaskLimits         Limits         `yaml:"task_limits"`
}

// LoadBudget reads an execution budget file.
func LoadBudget(path string) (Budget, Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Limits{}, errors.Configuration("budget", fmt.Sprintf("reading %s", path)).WithCause(err)
	}
	return ParseBudget(data)
}

// ParseBudget parses an execution budget document. A top-level number is a
// metric threshold. A nested mapping is a group whose "max_<metric>" keys
// budget <metric> and whose other keys are taken as metric names.
//
//	performance_budgets:
//	  runtime_ms: 5000
//	  chat_ui:
//	    max_inp_ms: 200
//	task_limits:
//	  max_parallel_tasks: 3
func ParseBudget(data []byte) (Budget, Limits, error) {
	var f budgetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, Limits{}, errors.Configuration("budget", "budget file is not valid YAML").WithCause(err)
	}

	v := validation.New()
	budget := make(Budget)
	add := func(field, metric string, raw any) {
		value, ok := toFloat(raw)
		if !ok {
			v.AddError(field, fmt.Sprintf("threshold %v is not a number", raw))
			return
		}
		if _, dup := budget[metric]; dup {
			v.AddError(field, fmt.Sprintf("metric %q is budgeted more than once", metric))
			return
		}
		v.NonNegative(field, value)
		budget[metric] = value
	}

	keys := make([]string, 0, len(f.PerformanceBudgets))
	for k := range f.PerformanceBudgets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw := f.PerformanceBudgets[key]
		group, isGroup := raw.(map[string]any)
		if !isGroup {
			add("performance_budgets."+key, key, raw)
			continue
		}
		inner := make([]string, 0, len(group))
		for k := range group {
			inner = append(inner, k)
		}
		sort.Strings(inner)
		for _, k := range inner {
			add(fmt.Sprintf("performance_budgets.%s.%s", key, k), strings.TrimPrefix(k, "max_"), group[k])
		}
	}
	if f.TaskLimits.MaxParallelTasks < 0 {
		v.AddError("task_limits.max_parallel_tasks", "must not be negative")
	}
	if err := v.Error(); err != nil {
		return nil, Limits{}, err
	}
	return budget, f.TaskLimits, nil
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
