// Package keystore provides durable client-local key/value storage for
// session credentials. It is the Go counterpart of browser localStorage:
// small string values, synchronous access, survives process restarts.
package keystore

import "sync"

// Store is the durable key/value contract the session layer persists through.
type Store interface {
	// Get returns the value for key. The second return is false when the key
	// is absent.
	Get(key string) (string, bool, error)
	// Set writes or replaces the value for key.
	Set(key, value string) error
	// Delete removes the given keys. Deleting an absent key is not an error.
	Delete(keys ...string) error
	// Close releases any underlying resources.
	Close() error
}

// Memory is an in-process Store for tests and ephemeral sessions.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *Memory) Close() error { return nil }
