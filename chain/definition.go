package chain

// StepKind says how a step's tasks are run.
type StepKind string

const (
	// StepSingle runs exactly one task in place.
	StepSingle StepKind = "single"
	// StepParallel runs its tasks through the scheduler.
	StepParallel StepKind = "parallel"
)

// Step is one entry of a chain definition.
type Step struct {
	kind  StepKind
	tasks []string
}

// Single returns a step that runs one task.
func Single(name string) Step {
	return Step{kind: StepSingle, tasks: []string{name}}
}

// Parallel returns a step that runs names concurrently.
func Parallel(names ...string) Step {
	return Step{kind: StepParallel, tasks: append([]string(nil), names...)}
}

// Kind returns the step kind.
func (s Step) Kind() StepKind { return s.kind }

// IsParallel reports whether the step is a parallel block.
func (s Step) IsParallel() bool { return s.kind == StepParallel }

// TaskNames returns a copy of the step's task names.
func (s Step) TaskNames() []string {
	return append([]string(nil), s.tasks...)
}

// Task returns the task of a single step, or "" for a parallel block.
func (s Step) Task() string {
	if s.kind != StepSingle || len(s.tasks) == 0 {
		return ""
	}
	return s.tasks[0]
}

// Definition is a named, ordered list of steps. A Definition is a value and
// its accessors return copies, so executing it never changes it.
type Definition struct {
	name  string
	steps []Step
}

// NewDefinition builds a definition from steps.
func NewDefinition(name string, steps ...Step) Definition {
	d := Definition{name: name, steps: make([]Step, len(steps))}
	for i, s := range steps {
		d.steps[i] = Step{kind: s.kind, tasks: s.TaskNames()}
	}
	return d
}

// Name returns the chain name.
func (d Definition) Name() string { return d.name }

// Len returns the number of steps.
func (d Definition) Len() int { return len(d.steps) }

// Steps returns a copy of the steps.
func (d Definition) Steps() []Step {
	out := make([]Step, len(d.steps))
	for i, s := range d.steps {
		out[i] = Step{kind: s.kind, tasks: s.TaskNames()}
	}
	return out
}

// TaskNames lists every task the definition references, in first-seen order.
func (d Definition) TaskNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range d.steps {
		for _, t := range s.tasks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			names = append(names, t)
		}
	}
	return names
}
