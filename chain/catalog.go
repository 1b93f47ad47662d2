package chain

import (
	"fmt"
	"sort"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/validation"
)

// TaskSpec describes a task declaratively, as written in a catalog file.
type TaskSpec struct {
	Kind   string         `yaml:"kind" json:"kind"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

func (s TaskSpec) clone() TaskSpec {
	out := TaskSpec{Kind: s.Kind}
	if s.Params != nil {
		out.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Catalog is an immutable set of chain definitions plus the task specs that
// came with them.
type Catalog struct {
	defs  map[string]Definition
	specs map[string]TaskSpec
}

// NewCatalog validates defs and builds a catalog. Duplicate or malformed
// names and empty parallel blocks are INVALID_DEFINITION errors.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	return newCatalog(defs, nil)
}

func newCatalog(defs []Definition, specs map[string]TaskSpec) (*Catalog, error) {
	v := validation.New()
	c := &Catalog{
		defs:  make(map[string]Definition, len(defs)),
		specs: make(map[string]TaskSpec, len(specs)),
	}
	for _, d := range defs {
		v.Identifier("chain", d.name)
		if _, dup := c.defs[d.name]; dup {
			v.AddError("chain", fmt.Sprintf("%q is defined more than once", d.name))
			continue
		}
		for i, s := range d.steps {
			field := fmt.Sprintf("%s.steps[%d]", d.name, i)
			switch s.kind {
			case StepSingle:
				v.Check(len(s.tasks) == 1, field, "single step must name exactly one task")
			case StepParallel:
				v.MinItems(field, len(s.tasks), 1)
				v.Unique(field, s.tasks)
			default:
				v.AddError(field, fmt.Sprintf("unknown step kind %q", s.kind))
			}
			for _, t := range s.tasks {
				v.Identifier(field, t)
			}
		}
		c.defs[d.name] = NewDefinition(d.name, d.steps...)
	}
	for name, spec := range specs {
		v.Identifier("tasks", name)
		c.specs[name] = spec.clone()
	}
	if appErr := v.Validate(); appErr != nil {
		return nil, errors.InvalidDefinition(appErr.Message).WithDetail("fields", v.Errors())
	}
	return c, nil
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Len returns the number of chains.
func (c *Catalog) Len() int { return len(c.defs) }

// Names returns the chain names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskSpecs returns a copy of the declared task specs.
func (c *Catalog) TaskSpecs() map[string]TaskSpec {
	out := make(map[string]TaskSpec, len(c.specs))
	for name, spec := range c.specs {
		out[name] = spec.clone()
	}
	return out
}

// TaskNames lists every task referenced by any chain, sorted.
func (c *Catalog) TaskNames() []string {
	seen := make(map[string]struct{})
	for _, d := range c.defs {
		for _, t := range d.TaskNames() {
			seen[t] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
