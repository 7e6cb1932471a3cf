// Package cachestore provides versioned, namespaced key-value persistence
// for discovery and evaluation results.
//
// A Backend persists raw envelope records under namespaced keys; Store is the
// typed view over one namespace. Every persisted value is wrapped in an
// Envelope carrying the format version of the value type. On load, a version
// mismatch, a structural-validation failure, or a corrupt record is treated
// as absent and the bad record is deleted, so bumping a store's version
// invalidates old entries without a migration step.
//
// All backends satisfy the same observable contract; callers can only tell
// them apart by whether entries survive a process restart.
package cachestore

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Backend persists raw records under namespaced keys. Implementations must
// be safe for concurrent Load/Store on distinct keys; concurrent Store on
// the same key is last-writer-wins.
type Backend interface {
	Load(namespace []string, key string) ([]byte, bool, error)
	Store(namespace []string, key string, data []byte) error
	Delete(namespace []string, key string) error
	Clear(namespace []string) error
	Keys(namespace []string) ([]string, error)
	Close() error
}

// Envelope wraps a persisted value with its key and format version.
type Envelope[V any] struct {
	Key     string `json:"key"`
	Version string `json:"version"`
	Value   V      `json:"value"`
}

// envelopeHeader decodes just enough of a record to check its version.
type envelopeHeader struct {
	Version string `json:"version"`
}

// Validator reports whether a decoded value is structurally sound. A nil
// validator accepts everything.
type Validator[V any] func(V) bool

// Entry is one key-value pair returned by Entries.
type Entry[V any] struct {
	Key   string
	Value V
}

// Store is the typed, versioned view over one namespace of a Backend.
type Store[V any] struct {
	backend  Backend
	ns       []string
	version  string
	validate Validator[V]
}

// NewStore creates a Store for the given namespace path and format version.
// Distinct namespace paths never collide even when they share a Backend.
func NewStore[V any](backend Backend, namespace []string, version string, validate Validator[V]) *Store[V] {
	ns := append([]string(nil), namespace...)
	return &Store[V]{backend: backend, ns: ns, version: version, validate: validate}
}

// Version returns the store's authoritative format version string.
func (s *Store[V]) Version() string { return s.version }

// Load returns the value stored under key, or found=false when the entry is
// missing, was written under a different format version, fails structural
// validation, or is corrupt. Unreadable and stale records are deleted as a
// side effect, so the next Store to the key starts clean.
func (s *Store[V]) Load(key string) (V, bool, error) {
	var zero V
	data, ok, err := s.backend.Load(s.ns, key)
	if err != nil {
		return zero, false, fmt.Errorf("cachestore: load %q: %w", key, err)
	}
	if !ok {
		return zero, false, nil
	}

	var env Envelope[V]
	if err := json.Unmarshal(data, &env); err != nil {
		s.heal(key)
		return zero, false, nil
	}
	if env.Version != s.version || env.Key != key {
		s.heal(key)
		return zero, false, nil
	}
	if s.validate != nil && !s.validate(env.Value) {
		s.heal(key)
		return zero, false, nil
	}
	return env.Value, true, nil
}

// Store writes value under key, overwriting unconditionally.
func (s *Store[V]) Store(key string, value V) error {
	env := Envelope[V]{Key: key, Version: s.version, Value: value}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cachestore: encode %q: %w", key, err)
	}
	if err := s.backend.Store(s.ns, key, data); err != nil {
		return fmt.Errorf("cachestore: store %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key. Deleting an absent key is not an error.
func (s *Store[V]) Delete(key string) error {
	if err := s.backend.Delete(s.ns, key); err != nil {
		return fmt.Errorf("cachestore: delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry in this store's namespace.
func (s *Store[V]) Clear() error {
	if err := s.backend.Clear(s.ns); err != nil {
		return fmt.Errorf("cachestore: clear: %w", err)
	}
	return nil
}

// Size returns the number of entries visible under the current version.
func (s *Store[V]) Size() (int, error) {
	keys, err := s.visibleKeys()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Entries returns the visible entries as a finite sequence snapshot. The key
// list is materialized up front, so concurrent mutation during iteration
// cannot invalidate the walk; the sequence is not restartable.
func (s *Store[V]) Entries() ([]Entry[V], error) {
	keys, err := s.visibleKeys()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry[V], 0, len(keys))
	for _, key := range keys {
		value, ok, err := s.Load(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // deleted or healed since the key snapshot
		}
		entries = append(entries, Entry[V]{Key: key, Value: value})
	}
	return entries, nil
}

// visibleKeys lists keys whose records decode under the current version.
// Stale-version records are left in place; they are pruned lazily when the
// same key is loaded or rewritten.
func (s *Store[V]) visibleKeys() ([]string, error) {
	keys, err := s.backend.Keys(s.ns)
	if err != nil {
		return nil, fmt.Errorf("cachestore: keys: %w", err)
	}
	visible := make([]string, 0, len(keys))
	for _, key := range keys {
		data, ok, err := s.backend.Load(s.ns, key)
		if err != nil || !ok {
			continue
		}
		var hdr envelopeHeader
		if json.Unmarshal(data, &hdr) != nil || hdr.Version != s.version {
			continue
		}
		visible = append(visible, key)
	}
	sort.Strings(visible)
	return visible, nil
}

// heal deletes a record that failed to load. Best effort: a failed delete
// just means the record stays unreadable until the next write.
func (s *Store[V]) heal(key string) {
	_ = s.backend.Delete(s.ns, key)
}
