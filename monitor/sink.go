package monitor

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/storage"
	"github.com/kbukum/chainkit/validation"
)

// DefaultPrefix is where records are written inside the store.
const DefaultPrefix = "performance"

// DashboardFile is the dashboard object name under the prefix.
const DashboardFile = "dashboard.md"

// Sink persists iteration records.
type Sink interface {
	Persist(ctx context.Context, r Record) error
}

// Archive is a Sink that can also list what it holds and store reports next
// to the records. Dashboard needs one.
type Archive interface {
	Sink
	Iterations(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (Record, error)
	WriteReport(ctx context.Context, name string, data []byte) (string, error)
}

// NopSink discards records.
type NopSink struct{}

// Persist implements Sink.
func (NopSink) Persist(context.Context, Record) error { return nil }

// StorageSink writes each record as indented JSON to <prefix>/<iteration>.json.
type StorageSink struct {
	store  storage.Storage
	prefix string
}

// NewStorageSink creates a sink over store. An empty prefix uses DefaultPrefix.
func NewStorageSink(store storage.Storage, prefix string) *StorageSink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &StorageSink{store: store, prefix: strings.Trim(prefix, "/")}
}

// Prefix returns the key prefix.
func (s *StorageSink) Prefix() string { return s.prefix }

// Persist writes r, replacing any earlier record with the same id. Failures
// are PERSISTENCE_FAILED errors.
func (s *StorageSink) Persist(ctx context.Context, r Record) error {
	if err := validation.New().Identifier("iteration_id", r.IterationID).Error(); err != nil {
		return errors.Persistence(r.IterationID, err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Persistence(r.IterationID, err)
	}
	if err := storage.PutBytes(ctx, s.store, s.recordPath(r.IterationID), data); err != nil {
		return errors.Persistence(r.IterationID, err)
	}
	return nil
}

// Load reads the record stored for id.
func (s *StorageSink) Load(ctx context.Context, id string) (Record, error) {
	data, err := storage.GetBytes(ctx, s.store, s.recordPath(id))
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.Internal(err).WithDetail("iteration", id)
	}
	return r, nil
}

// Iterations lists the ids of stored records, sorted.
func (s *StorageSink) Iterations(ctx context.Context) ([]string, error) {
	files, err := s.store.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		dir, name := path.Split(f.Path)
		if strings.Trim(dir, "/") != s.prefix || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteReport stores data at <prefix>/<name> and returns its locator.
func (s *StorageSink) WriteReport(ctx context.Context, name string, data []byte) (string, error) {
	p := path.Join(s.prefix, name)
	if err := storage.PutBytes(ctx, s.store, p, data); err != nil {
		return "", err
	}
	return s.store.URL(ctx, p)
}

func (s *StorageSink) recordPath(id string) string {
	return path.Join(s.prefix, id+".json")
}

// MemorySink keeps records in memory. It is safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]Record
	writes  int
	reports map[string][]byte
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]Record), reports: make(map[string][]byte)}
}

// Persist implements Sink.
func (m *MemorySink) Persist(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.IterationID] = r
	m.writes++
	return nil
}

// Load implements Archive.
func (m *MemorySink) Load(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, storage.ErrNotFound
	}
	return r, nil
}

// Iterations implements Archive.
func (m *MemorySink) Iterations(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteReport implements Archive.
func (m *MemorySink) WriteReport(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[name] = append([]byte(nil), data...)
	return "memory://" + name, nil
}

// Writes returns how many times Persist was called.
func (m *MemorySink) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Report returns a stored report.
func (m *MemorySink) Report(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.reports[name]
	return data, ok
}
