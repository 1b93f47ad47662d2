// Package tasks provides the built-in task kinds a catalog can declare:
// echo, sleep, set and fail.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/errors"
)

// Task kinds.
const (
	KindEcho  = "echo"
	KindSleep = "sleep"
	KindSet   = "set"
	KindFail  = "fail"
)

// Builder constructs a task from its catalog spec.
type Builder func(name string, params map[string]any) (chain.Task, error)

var builders = map[string]Builder{
	KindEcho:  func(name string, _ map[string]any) (chain.Task, error) { return Echo(name), nil },
	KindSleep: buildSleep,
	KindSet:   buildSet,
	KindFail:  buildFail,
}

// Kinds returns the supported kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// FromSpec builds the task named name from spec. An empty kind is echo; an
// unknown kind is an INVALID_DEFINITION error.
func FromSpec(name string, spec chain.TaskSpec) (chain.Task, error) {
	kind := spec.Kind
	if kind == "" {
		kind = KindEcho
	}
	build, ok := builders[kind]
	if !ok {
		return nil, errors.InvalidDefinition(fmt.Sprintf("task %q has unknown kind %q", name, kind)).
			WithDetail("task", name)
	}
	return build(name, spec.Params)
}

// RegisterCatalog registers a task for every spec in the catalog, then an
// echo task for every referenced task that has no spec and is not already
// registered.
func RegisterCatalog(reg *chain.Registry, catalog *chain.Catalog) error {
	specs := catalog.TaskSpecs()
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		task, err := FromSpec(name, specs[name])
		if err != nil {
			return err
		}
		if err := reg.Register(task); err != nil {
			return err
		}
	}
	for _, name := range catalog.TaskNames() {
		if _, ok := reg.Get(name); ok {
			continue
		}
		if err := reg.Register(Echo(name)); err != nil {
			return err
		}
	}
	return nil
}

// Echo returns a task that reports itself executed along with the context
// keys it could see.
func Echo(name string) chain.Task {
	return chain.NewTask(name, func(_ context.Context, c *chain.Context) (any, error) {
		return map[string]any{
			"module":       name,
			"status":       string(chain.TaskExecuted),
			"context_keys": c.Keys(),
		}, nil
	})
}

// Sleep returns a task that waits for d or until ctx is done.
func Sleep(name string, d time.Duration) chain.Task {
	return chain.NewTask(name, func(ctx context.Context, _ *chain.Context) (any, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return map[string]any{"module": name, "slept_ms": d.Milliseconds()}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Set returns a task that writes value under key.
func Set(name, key string, value any) chain.Task {
	return chain.NewTask(name, func(_ context.Context, c *chain.Context) (any, error) {
		c.Set(key, value)
		return map[string]any{"module": name, "key": key}, nil
	})
}

// Fail returns a task that always fails with message.
func Fail(name, message string) chain.Task {
	return chain.NewTask(name, func(context.Context, *chain.Context) (any, error) {
		return nil, errors.TaskExecution(name, fmt.Errorf("%s", message))
	})
}

func buildSleep(name string, params map[string]any) (chain.Task, error) {
	raw, ok := params["duration"]
	if !ok {
		return nil, paramError(name, "duration", "is required")
	}
	var d time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, paramError(name, "duration", fmt.Sprintf("%q is not a duration", v))
		}
		d = parsed
	case int:
		d = time.Duration(v) * time.Millisecond
	case float64:
		d = time.Duration(v * float64(time.Millisecond))
	default:
		return nil, paramError(name, "duration", fmt.Sprintf("unsupported value %v", raw))
	}
	if d < 0 {
		return nil, paramError(name, "duration", "must not be negative")
	}
	return Sleep(name, d), nil
}

func buildSet(name string, params map[string]any) (chain.Task, error) {
	key, _ := params["key"].(string)
	if key == "" {
		return nil, paramError(name, "key", "is required")
	}
	return Set(name, key, params["value"]), nil
}

func buildFail(name string, params map[string]any) (chain.Task, error) {
	message, _ := params["message"].(string)
	if message == "" {
		message = "task failed"
	}
	return Fail(name, message), nil
}

func paramError(task, param, reason string) *errors.AppError {
	return errors.InvalidDefinition(fmt.Sprintf("task %q param %s %s", task, param, reason)).
		WithDetail("task", task)
}
