package content

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrNotReady is returned by ReadyErr until a snapshot with files is set.
var ErrNotReady = errors.New("no active snapshot")

// Manager holds the snapshot being served. Readers never block writers;
// a swap is a single pointer store.
type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set makes s current.
func (m *Manager) Set(s Snapshot) { m.Swap(s) }

// Swap makes a copy of s current and returns the snapshot it replaced,
// or nil. LoadedAt is stamped when unset.
func (m *Manager) Swap(s Snapshot) *Snapshot {
	if s.LoadedAt.IsZero() {
		s.LoadedAt = time.Now().UTC()
	}
	return m.active.Swap(&s)
}

// Get returns the current snapshot; ok is false until one with an FS is set.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

func (m *Manager) meta() Meta {
	if s := m.active.Load(); s != nil {
		return s.Meta
	}
	return Meta{Source: SourceUnknown}
}

// ContentVersion prefers the manifest's version over the snapshot meta.
func (m *Manager) ContentVersion() string {
	if mf := m.Manifest(); mf != nil && mf.Version != "" {
		return mf.Version
	}
	return m.meta().Version
}

func (m *Manager) ContentHash() string { return m.meta().SHA256 }

func (m *Manager) Source() Source { return m.meta().Source }

func (m *Manager) Manifest() *Manifest {
	if s := m.active.Load(); s != nil {
		return s.Manifest
	}
	return nil
}

// LoadedAt is zero before the first Set.
func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// ReadyErr backs the readiness probe.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return ErrNotReady
	}
	return nil
}
