// Package memory implements repository.Backend in process memory. Nothing
// survives a restart; it backs tests and the "memory" store mode.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/sakif/localfeed/internal/repository"
)

var _ repository.Backend = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	fail   error
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, false, s.fail
	}
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.values[key] = slices.Clone(value)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.values, key)
	return nil
}

func (s *Store) Close() error { return nil }

// Fail makes every later operation return err, simulating an unavailable
// store. Fail(nil) restores normal behaviour.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Raw returns the stored bytes for key, for assertions in tests.
func (s *Store) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return slices.Clone(v), ok
}
