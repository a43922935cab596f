package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// FILE STORE - {"<identity>": {"completadas": n, "fecha": "...", "numero": k}}
// =============================================================================

type recordJSON struct {
	Completadas int    `json:"completadas"`
	Fecha       string `json:"fecha"`
	Numero      int    `json:"numero"`
}

// FileStore keeps all records in one JSON document. Missing or corrupt
// documents read as empty.
type FileStore struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, loc *time.Location) *FileStore {
	if loc == nil {
		loc = time.Local
	}
	return &FileStore{path: path, loc: loc}
}

func (f *FileStore) Get(_ context.Context, identity points.Identity) (Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.read()[string(identity)]
	if !ok {
		return Record{}, false, nil
	}
	return f.decode(identity, raw), true, nil
}

func (f *FileStore) Put(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.read()
	doc[string(rec.Identity)] = recordJSON{
		Completadas: rec.Completed,
		Fecha:       rec.UpdatedAt.In(f.loc).Format(points.TimestampLayout),
		Numero:      rec.Number,
	}
	return f.write(doc)
}

func (f *FileStore) Delete(_ context.Context, identities ...points.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.read()
	changed := false
	for _, id := range identities {
		if _, ok := doc[string(id)]; ok {
			delete(doc, string(id))
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.write(doc)
}

func (f *FileStore) All(_ context.Context) ([]Record, error) {
	f.mu.Lock()
	doc := f.read()
	f.mu.Unlock()

	out := make([]Record, 0, len(doc))
	for name, raw := range doc {
		out = append(out, f.decode(points.Identity(name), raw))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// decode leaves UpdatedAt zero when "fecha" is unreadable, which makes the
// record stale.
func (f *FileStore) decode(identity points.Identity, raw recordJSON) Record {
	at, _ := time.ParseInLocation(points.TimestampLayout, raw.Fecha, f.loc)
	return Record{Identity: identity, Completed: raw.Completadas, Number: raw.Numero, UpdatedAt: at}
}

func (f *FileStore) read() map[string]recordJSON {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return map[string]recordJSON{}
	}
	var doc map[string]recordJSON
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return map[string]recordJSON{}
	}
	return doc
}

func (f *FileStore) write(doc map[string]recordJSON) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore is a Store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[points.Identity]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[points.Identity]Record)}
}

func (m *MemoryStore) Get(_ context.Context, identity points.Identity) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[identity]
	return rec, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Identity] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, identities ...points.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range identities {
		delete(m.records, id)
	}
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
