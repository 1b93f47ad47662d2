package chain

import (
	"reflect"
	"sort"
	"sync"
)

// Context is the key-value store shared by the tasks of one chain run,
// together with the list of tasks that have executed.
//
// A Context returned by Fork is a view: reads fall through to its root,
// writes and deletes stay in the view until the root commits it. Values are
// shared by reference, so tasks should replace values rather than mutate
// them in place.
type Context struct {
	mu       sync.RWMutex
	data     map[string]any
	executed []string

	root    *Context
	deleted map[string]struct{}
}

// NewContext creates a root context seeded with a copy of seed.
func NewContext(seed map[string]any) *Context {
	c := &Context{data: make(map[string]any, len(seed))}
	for k, v := range seed {
		c.data[k] = cloneValue(v)
	}
	return c
}

// IsView reports whether c was returned by Fork.
func (c *Context) IsView() bool { return c.root != nil }

// Get retrieves a value by key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	if v, ok := c.data[key]; ok {
		c.mu.RUnlock()
		return v, true
	}
	_, gone := c.deleted[key]
	c.mu.RUnlock()
	if gone || c.root == nil {
		return nil, false
	}
	return c.root.Get(key)
}

// Set stores a value by key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	delete(c.deleted, key)
}

// Delete removes key. On a view the removal is applied at commit.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	if c.root != nil {
		if c.deleted == nil {
			c.deleted = make(map[string]struct{})
		}
		c.deleted[key] = struct{}{}
	}
}

// Snapshot returns a shallow copy of every visible key.
func (c *Context) Snapshot() map[string]any {
	var out map[string]any
	if c.root != nil {
		out = c.root.Snapshot()
	} else {
		out = make(map[string]any)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k := range c.deleted {
		delete(out, k)
	}
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Keys returns the visible keys, sorted.
func (c *Context) Keys() []string {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarkExecuted appends name to the executed list. Views record on their
// root, so completion order is kept across concurrent tasks.
func (c *Context) MarkExecuted(name string) {
	if c.root != nil {
		c.root.MarkExecuted(name)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, name)
}

// Executed returns a copy of the executed list.
func (c *Context) Executed() []string {
	if c.root != nil {
		return c.root.Executed()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.executed...)
}

// Fork returns an isolated view. Forking a view forks its root.
func (c *Context) Fork() *Context {
	root := c
	if c.root != nil {
		root = c.root
	}
	return &Context{data: make(map[string]any), root: root}
}

// Commit folds views into c in the order given. Later views win on
// conflicting keys; nested maps are merged and other values are replaced.
// Views that belong to another root are ignored.
func (c *Context) Commit(views ...*Context) error {
	if c.root != nil {
		return c.root.Commit(views...)
	}
	if len(views) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[string]any, len(c.data))
	for k, v := range c.data {
		merged[k] = cloneValue(v)
	}
	for _, view := range views {
		if view == nil || view.root != c {
			continue
		}
		view.mu.RLock()
		for k := range view.deleted {
			delete(merged, k)
		}
		for k, v := range view.data {
			if mergeable(merged[k], v) {
				merged[k] = mergeMaps(merged[k], v)
				continue
			}
			merged[k] = cloneValue(v)
		}
		view.mu.RUnlock()
	}
	c.data = merged
	return nil
}

// mergeable reports whether src can be deep-merged into dst: both are maps of
// the same type and every nested pair of maps under a shared key is too.
func mergeable(dst, src any) bool {
	if dst == nil || src == nil {
		return false
	}
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if dv.Kind() != reflect.Map || dv.Type() != sv.Type() {
		return false
	}
	iter := sv.MapRange()
	for iter.Next() {
		d := dv.MapIndex(iter.Key())
		if !d.IsValid() {
			continue
		}
		dInner, sInner := d.Interface(), iter.Value().Interface()
		dIsMap := dInner != nil && reflect.TypeOf(dInner).Kind() == reflect.Map
		sIsMap := sInner != nil && reflect.TypeOf(sInner).Kind() == reflect.Map
		if dIsMap && sIsMap && !mergeable(dInner, sInner) {
			return false
		}
	}
	return true
}

// mergeMaps folds src into a copy of dst key by key. Shared keys holding maps
// recurse; every other src value replaces the dst value, zero values included.
// Keys only dst holds are kept.
func mergeMaps(dst, src any) any {
	out := reflect.ValueOf(cloneValue(dst))
	if out.IsNil() {
		out = reflect.MakeMap(out.Type())
	}
	iter := reflect.ValueOf(src).MapRange()
	for iter.Next() {
		key, sv := iter.Key(), iter.Value()
		if dv := out.MapIndex(key); dv.IsValid() && mergeable(dv.Interface(), sv.Interface()) {
			out.SetMapIndex(key, reflect.ValueOf(mergeMaps(dv.Interface(), sv.Interface())).Convert(out.Type().Elem()))
			continue
		}
		elem := reflect.ValueOf(cloneValue(sv.Interface()))
		if !elem.IsValid() {
			elem = reflect.Zero(out.Type().Elem())
		}
		out.SetMapIndex(key, elem)
	}
	return out.Interface()
}

// cloneValue copies maps recursively so a merge never writes through to a
// map the caller still holds.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.IsNil() {
		return v
	}
	out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		elem := reflect.ValueOf(cloneValue(iter.Value().Interface()))
		if !elem.IsValid() {
			elem = reflect.Zero(rv.Type().Elem())
		}
		out.SetMapIndex(iter.Key(), elem)
	}
	return out.Interface()
}
