// Package contextgraph keeps a flat runtime context graph of chain runs and
// exports it as JSON, Markdown or HTML through a storage backend.
package contextgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/storage"
)

// DefaultDir is the export directory inside the store.
const DefaultDir = "dashboards"

// Export file names.
const (
	JSONFile     = "context_graph.json"
	MarkdownFile = "context_graph.md"
	HTMLFile     = "context_graph.html"
)

var htmlPage = template.Must(template.New("graph").Parse(
	"<html><body><h1>Context Graph</h1><pre>{{.}}</pre></body></html>\n"))

// Graph is a key-value snapshot of the latest runtime context. Updates
// overwrite keys. It is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]any
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]any)}
}

// Update copies every entry of values into the graph.
func (g *Graph) Update(values map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, v := range values {
		g.nodes[k] = v
	}
}

// Snapshot returns a shallow copy of the graph.
func (g *Graph) Snapshot() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]any, len(g.nodes))
	for k, v := range g.nodes {
		out[k] = v
	}
	return out
}

// Len returns the number of keys.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// ExportJSON writes the graph as indented JSON to p, or to
// dashboards/context_graph.json when p is empty, and returns its locator.
func (g *Graph) ExportJSON(ctx context.Context, store storage.Storage, p string) (string, error) {
	data, err := g.indentedJSON()
	if err != nil {
		return "", err
	}
	return write(ctx, store, orDefault(p, JSONFile), data)
}

// ExportMarkdown writes a "# Context Graph" summary with one
// "- **key**: value" line per key, sorted.
func (g *Graph) ExportMarkdown(ctx context.Context, store storage.Storage, p string) (string, error) {
	snap := g.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# Context Graph\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- **%s**: %s\n", k, formatValue(snap[k]))
	}
	return write(ctx, store, orDefault(p, MarkdownFile), []byte(b.String()))
}

// ExportHTML writes the indented JSON, HTML-escaped, inside a <pre> block.
func (g *Graph) ExportHTML(ctx context.Context, store storage.Storage, p string) (string, error) {
	data, err := g.indentedJSON()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := htmlPage.Execute(&buf, string(data)); err != nil {
		return "", errors.Internal(err)
	}
	return write(ctx, store, orDefault(p, HTMLFile), buf.Bytes())
}

// Export writes all three formats under dir (DefaultDir when empty) and
// returns their locators in JSON, Markdown, HTML order.
func (g *Graph) Export(ctx context.Context, store storage.Storage, dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	exporters := []struct {
		name string
		fn   func(context.Context, storage.Storage, string) (string, error)
	}{
		{JSONFile, g.ExportJSON},
		{MarkdownFile, g.ExportMarkdown},
		{HTMLFile, g.ExportHTML},
	}
	paths := make([]string, 0, len(exporters))
	for _, e := range exporters {
		loc, err := e.fn(ctx, store, path.Join(dir, e.name))
		if err != nil {
			return paths, err
		}
		paths = append(paths, loc)
	}
	return paths, nil
}

// indentedJSON encodes the snapshot without HTML escaping; the HTML export
// escapes through the template instead.
func (g *Graph) indentedJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.Snapshot()); err != nil {
		return nil, errors.Internal(err).WithDetail("operation", "encode context graph")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func orDefault(p, name string) string {
	if p == "" {
		return path.Join(DefaultDir, name)
	}
	return p
}

func write(ctx context.Context, store storage.Storage, p string, data []byte) (string, error) {
	if err := storage.PutBytes(ctx, store, p, data); err != nil {
		return "", errors.New(errors.ErrCodePersistenceFailed, fmt.Sprintf("writing %s", p)).WithCause(err)
	}
	return store.URL(ctx, p)
}
