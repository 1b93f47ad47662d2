package chain

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/chainkit/errors"
)

// Registry maps task names to implementations.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Register adds task under its name. Registering a name twice is an
// INVALID_CONFIG error.
func (r *Registry) Register(task Task) error {
	if task == nil || task.Name() == "" {
		return errors.Configuration("task", "task must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.Name()]; exists {
		return errors.Configuration("task", fmt.Sprintf("task %q is already registered", task.Name()))
	}
	r.tasks[task.Name()] = task
	return nil
}

// MustRegister registers tasks and panics on the first error.
func (r *Registry) MustRegister(tasks ...Task) {
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get retrieves a task by name.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Resolve is Get returning TASK_NOT_FOUND for a missing name.
func (r *Registry) Resolve(name string) (Task, error) {
	if t, ok := r.Get(name); ok {
		return t, nil
	}
	return nil, errors.TaskNotFound(name)
}

// List returns sorted names of all registered tasks.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify checks that every task the catalog references is registered. The
// error names all missing tasks.
func (r *Registry) Verify(c *Catalog) error {
	var missing []string
	for _, name := range c.TaskNames() {
		if _, ok := r.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	err := errors.TaskNotFound(missing[0])
	if len(missing) > 1 {
		err.Message = fmt.Sprintf("tasks not registered: %s", strings.Join(missing, ", "))
	}
	return err.WithDetail("missing", missing)
}
