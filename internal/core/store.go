package core

import (
	"sync"
	"time"

	"github.com/joshp123/senso4s/senso4s"
)

// Snapshot is the latest known state of a configured device.
type Snapshot struct {
	Device    *senso4s.Device
	UpdatedAt time.Time
	// LastFull marks the last successful connected refresh, as
	// opposed to a passive advertisement update.
	LastFull  time.Time
	LastError string
}

// Store keeps the latest snapshot per configured device. Writers are
// the poller goroutines; readers are the HTTP API, MQTT publisher and
// the metrics collector.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewStore() *Store {
	return &Store{snapshots: make(map[string]Snapshot)}
}

// Update replaces the snapshot after a successful refresh.
func (s *Store) Update(address string, dev *senso4s.Device, full bool) {
	key := normalizeAddress(address)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshots[key]
	snap.Device = dev
	snap.UpdatedAt = now
	snap.LastError = ""
	if full {
		snap.LastFull = now
	}
	s.snapshots[key] = snap
}

// Fail records a refresh failure, keeping the last good data.
func (s *Store) Fail(address string, err error) {
	key := normalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshots[key]
	snap.LastError = err.Error()
	s.snapshots[key] = snap
}

// Get returns the snapshot for an address.
func (s *Store) Get(address string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[normalizeAddress(address)]
	return snap, ok
}

// Forget drops the snapshot for a removed device.
func (s *Store) Forget(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, normalizeAddress(address))
}
