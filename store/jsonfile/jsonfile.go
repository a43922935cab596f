/*
Package jsonfile provides the JSON point-log implementation of points.Store.

PURPOSE:
  Persists the whole point history as one JSON document, the format the
  dashboard has always read:

    {
      "Profile 2": {
        "email": "me@example.com",
        "registros": [
          {"fecha": "2026-03-20", "hora": "2026-03-20 09:30:15", "puntos": 6512}
        ]
      }
    }

WRITE MODEL:
  Every Append reads the document, appends, and overwrites the file
  through a temp file + rename. A mutex serializes writers inside this
  process. Two processes sharing one file is not supported.

TOLERANCE:
  - Missing or corrupt file: empty history (the next write recreates it)
  - Unknown fields: ignored
  - Missing "registros": empty list
  - "hora" unparseable: falls back to "fecha" at midnight
  - "fecha" empty: derived from "hora"
  - Neither parseable, or negative "puntos": record skipped

SEE ALSO:
  - points/store.go: The Store contract
  - store/sqlite: Alternative backend
*/
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// DOCUMENT FORMAT
// =============================================================================

type document map[string]*accountJSON

type accountJSON struct {
	Email     string       `json:"email"`
	Registros []recordJSON `json:"registros"`
}

type recordJSON struct {
	Fecha  string `json:"fecha"`
	Hora   string `json:"hora"`
	Puntos int64  `json:"puntos"`
}

// =============================================================================
// STORE
// =============================================================================

// Store is a points.Store backed by one JSON file.
type Store struct {
	path string
	loc  *time.Location
	mu   sync.Mutex
}

var _ points.Store = (*Store)(nil)

// New returns a store for the document at path. Timestamps in the document
// carry no zone; they are read in loc (time.Local when nil).
func New(path string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{path: path, loc: loc}
}

// Append adds a snapshot and rewrites the whole document.
func (s *Store) Append(_ context.Context, identity points.Identity, label string, snap points.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.read()
	acct, ok := doc[string(identity)]
	if !ok || acct == nil {
		acct = &accountJSON{Registros: []recordJSON{}}
		doc[string(identity)] = acct
	}
	if label != "" {
		acct.Email = label
	}

	acct.Registros = append(acct.Registros, s.encode(snap))
	return s.write(doc)
}

// Load returns the history. It never fails on a bad document.
func (s *Store) Load(_ context.Context) (points.History, error) {
	s.mu.Lock()
	doc := s.read()
	s.mu.Unlock()

	history := make(points.History, len(doc))
	for name, acct := range doc {
		id := points.Identity(name)
		if acct == nil {
			history[id] = points.Account{}
			continue
		}
		snaps := make([]points.Snapshot, 0, len(acct.Registros))
		for _, r := range acct.Registros {
			if snap, ok := s.decode(id, r); ok {
				snaps = append(snaps, snap)
			}
		}
		history[id] = points.Account{Label: acct.Email, Snapshots: snaps}
	}
	return history, nil
}

// ImportHistory writes a whole history, replacing the document.
func (s *Store) ImportHistory(_ context.Context, history points.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(document, len(history))
	for id, acct := range history {
		a := &accountJSON{Email: acct.Label, Registros: make([]recordJSON, 0, len(acct.Snapshots))}
		for _, snap := range acct.Snapshots {
			a.Registros = append(a.Registros, s.encode(snap))
		}
		doc[string(id)] = a
	}
	return s.write(doc)
}

func (s *Store) encode(snap points.Snapshot) recordJSON {
	at := snap.At.In(s.loc)
	day := snap.Date
	if day.IsZero() {
		day = points.DateOf(at)
	}
	return recordJSON{
		Fecha:  day.String(),
		Hora:   at.Format(points.TimestampLayout),
		Puntos: snap.Points,
	}
}

func (s *Store) decode(id points.Identity, r recordJSON) (points.Snapshot, bool) {
	if r.Puntos < 0 {
		return points.Snapshot{}, false
	}

	day, dayErr := points.ParseDate(r.Fecha)
	at, atErr := time.ParseInLocation(points.TimestampLayout, r.Hora, s.loc)

	switch {
	case dayErr != nil && atErr != nil:
		return points.Snapshot{}, false
	case atErr != nil:
		at = time.Date(day.Time.Year(), day.Time.Month(), day.Time.Day(), 0, 0, 0, 0, s.loc)
	case dayErr != nil:
		day = points.DateOf(at)
	}

	return points.Snapshot{Identity: id, Date: day, At: at, Points: r.Puntos}, true
}

// read must be called with mu held.
func (s *Store) read() document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return document{}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return document{}
	}
	return doc
}

// write must be called with mu held.
func (s *Store) write(doc document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
