package chain

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/chainkit/errors"
)

// parallelMarker introduces a parallel block in either step form.
const parallelMarker = "parallel"

// CatalogLoader loads a catalog by name.
type CatalogLoader interface {
	Load(name string) (*Catalog, error)
}

// FileCatalogLoader loads catalogs from YAML files on disk.
type FileCatalogLoader struct {
	dirs []string
}

// NewFileCatalogLoader creates a loader that searches dirs for catalog files.
func NewFileCatalogLoader(dirs ...string) *FileCatalogLoader {
	return &FileCatalogLoader{dirs: dirs}
}

// Load searches for {name}.yaml and {name}.yml in each directory, then one
// level of subdirectories. A file that exists but does not parse is returned
// as an error rather than skipped.
func (l *FileCatalogLoader) Load(name string) (*Catalog, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			candidates := []string{filepath.Join(dir, name+ext)}
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			candidates = append(candidates, matches...)
			for _, path := range candidates {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				return LoadCatalog(path)
			}
		}
	}
	return nil, errors.Configuration("chains", fmt.Sprintf("catalog %q not found in %v", name, l.dirs))
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Configuration("chains", fmt.Sprintf("reading %s", path)).WithCause(err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			return nil, appErr.WithDetail("path", path)
		}
		return nil, err
	}
	return c, nil
}

type catalogFile struct {
	Tasks  map[string]TaskSpec `yaml:"tasks"`
	Chains yaml.Node           `yaml:"chains"`
}

// ParseCatalog parses catalog YAML. A step is a task name, a mapping with the
// single key "parallel", or a sequence whose first element is "parallel".
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.InvalidDefinition("catalog is not valid YAML").WithCause(err)
	}
	defs, err := parseChains(&f.Chains)
	if err != nil {
		return nil, err
	}
	return newCatalog(defs, f.Tasks)
}

func parseChains(node *yaml.Node) ([]Definition, error) {
	node = resolveAlias(node)
	if node.Kind == 0 || isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, invalidAt(node, "chains must be a mapping of chain name to steps")
	}
	defs := make([]Definition, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], resolveAlias(node.Content[i+1])
		name := key.Value
		if _, dup := seen[name]; dup {
			return nil, invalidAt(key, fmt.Sprintf("chain %q is defined more than once", name))
		}
		seen[name] = struct{}{}

		if isNull(value) {
			defs = append(defs, NewDefinition(name))
			continue
		}
		if value.Kind != yaml.SequenceNode {
			return nil, invalidAt(value, fmt.Sprintf("chain %q must be a list of steps", name))
		}
		steps := make([]Step, 0, len(value.Content))
		for idx, item := range value.Content {
			step, err := parseStep(resolveAlias(item))
			if err != nil {
				return nil, invalidAt(item, fmt.Sprintf("chain %q step %d: %s", name, idx, err.Error()))
			}
			steps = append(steps, step)
		}
		defs = append(defs, NewDefinition(name, steps...))
	}
	return defs, nil
}

func parseStep(node *yaml.Node) (Step, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) {
			return Step{}, fmt.Errorf("empty step")
		}
		if node.Value == parallelMarker {
			return Step{}, fmt.Errorf("parallel marker without tasks")
		}
		return Single(node.Value), nil
	case yaml.MappingNode:
		if len(node.Content) != 2 || node.Content[0].Value != parallelMarker {
			return Step{}, fmt.Errorf("a mapping step must have the single key %q", parallelMarker)
		}
		list := resolveAlias(node.Content[1])
		if list.Kind != yaml.SequenceNode {
			return Step{}, fmt.Errorf("%q must list task names", parallelMarker)
		}
		names, err := scalarNames(list.Content)
		if err != nil {
			return Step{}, err
		}
		return Parallel(names...), nil
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return Step{}, fmt.Errorf("empty step list")
		}
		head := resolveAlias(node.Content[0])
		if head.Kind != yaml.ScalarNode || head.Value != parallelMarker {
			return Step{}, fmt.Errorf("a list step must start with %q", parallelMarker)
		}
		names, err := scalarNames(node.Content[1:])
		if err != nil {
			return Step{}, err
		}
		return Parallel(names...), nil
	default:
		return Step{}, fmt.Errorf("unsupported step shape")
	}
}

func scalarNames(nodes []*yaml.Node) ([]string, error) {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		n = resolveAlias(n)
		if n.Kind != yaml.ScalarNode || isNull(n) {
			return nil, fmt.Errorf("parallel entries must be task names")
		}
		names = append(names, n.Value)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("parallel block lists no tasks")
	}
	return names, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func invalidAt(n *yaml.Node, reason string) *errors.AppError {
	return errors.InvalidDefinition(reason).WithDetail("line", n.Line)
}
