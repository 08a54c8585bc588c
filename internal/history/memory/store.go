// Package memory provides an in-process history store.
package memory

import (
	"context"
	"sync"

	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
)

type Store struct {
	mu       sync.Mutex
	snapshot historydomain.Snapshot
	saves    int
}

func New(entries ...historydomain.Entry) *Store {
	return &Store{snapshot: historydomain.NewSnapshot(entries...)}
}

func (s *Store) Load(context.Context) ([]historydomain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Entries(), nil
}

func (s *Store) Save(_ context.Context, entries []historydomain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.snapshot.Apply(e)
	}
	s.saves++
	return nil
}

func (s *Store) Find(_ context.Context, key string) (*historydomain.Entry, error) {
	key = historydomain.NormalizeKey(key)
	if key == "" {
		return nil, historydomain.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.snapshot[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
