package chain

import "context"

// Task is the unit of work a chain step names.
type Task interface {
	Name() string
	Run(ctx context.Context, c *Context) (any, error)
}

// TaskFunc is the signature of a task body.
type TaskFunc func(ctx context.Context, c *Context) (any, error)

// NewTask wraps fn as a Task named name.
func NewTask(name string, fn TaskFunc) Task {
	return &funcTask{name: name, fn: fn}
}

type funcTask struct {
	name string
	fn   TaskFunc
}

func (t *funcTask) Name() string { return t.name }

func (t *funcTask) Run(ctx context.Context, c *Context) (any, error) {
	return t.fn(ctx, c)
}
