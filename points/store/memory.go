// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	accounts map[points.Identity]*points.Account
	appends  int
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[points.Identity]*points.Account),
	}
}

// Append adds a snapshot in insertion order. Append-only.
func (m *Memory) Append(_ context.Context, identity points.Identity, label string, snap points.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[identity]
	if !ok {
		acct = &points.Account{}
		m.accounts[identity] = acct
	}
	if label != "" {
		acct.Label = label
	}
	snap.Identity = identity
	acct.Snapshots = append(acct.Snapshots, snap)
	m.appends++
	return nil
}

// Load returns a deep copy of the history.
func (m *Memory) Load(_ context.Context) (points.History, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make(points.History, len(m.accounts))
	for id, acct := range m.accounts {
		snaps := make([]points.Snapshot, len(acct.Snapshots))
		copy(snaps, acct.Snapshots)
		history[id] = points.Account{Label: acct.Label, Snapshots: snaps}
	}
	return history, nil
}

// Appends returns how many snapshots were written. Used by tests to assert
// that no-op writes really were skipped.
func (m *Memory) Appends() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends
}

// Seed appends snaps under identity without going through the Recorder.
func (m *Memory) Seed(identity points.Identity, label string, snaps ...points.Snapshot) {
	for _, s := range snaps {
		_ = m.Append(context.Background(), identity, label, s)
	}
	if len(snaps) == 0 {
		m.mu.Lock()
		if _, ok := m.accounts[identity]; !ok {
			m.accounts[identity] = &points.Account{Label: label}
		}
		m.mu.Unlock()
	}
}
