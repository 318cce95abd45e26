// Package store implements the Current-Value Store: an in-memory map of
// the latest published value per parameter, shared between Bus Workers,
// the diagnostic surface, and hot reload.
package store

import (
	"sync"
	"time"

	"modbus-mqtt-gateway/pkg/config"
	"modbus-mqtt-gateway/pkg/decide"
	bridgeerrors "modbus-mqtt-gateway/pkg/errors"
)

// Key identifies one parameter's slot in the store.
type Key struct {
	Bus, Object, Param string
	UnitID             int
}

// Entry is the latest known state of one parameter, as seen by any reader
// of the live view.
type Entry struct {
	HasValue   bool
	Value      float64
	Code       bridgeerrors.Code
	Message    string
	LastOkTS   time.Time
	LastPubTS  time.Time
	Trigger    decide.Trigger
	NoReply    int

	RegisterType config.RegisterType
	Address      int
}

// Store is the thread-safe current-value map.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func New() *Store {
	return &Store{entries: make(map[Key]Entry)}
}

// Get returns a copy of the entry at key, if present.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Publish records a new published value at key.
func (s *Store) Publish(key Key, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

// Touch updates last_ok_ts and the addressing echo (register type and
// address) on a successful read that did not publish, preserving the rest
// of the entry (or creating a bare one if absent).
func (s *Store) Touch(key Key, now time.Time, rt config.RegisterType, address int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	e.LastOkTS = now
	e.RegisterType = rt
	e.Address = address
	s.entries[key] = e
}

// Keys returns every key currently tracked. Hot reload does not use it; it
// drops non-surviving entries through Prune.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Prune removes every entry whose key is not in keep.
func (s *Store) Prune(keep map[Key]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if !keep[k] {
			delete(s.entries, k)
		}
	}
}
