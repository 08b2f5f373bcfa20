package store

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests and --no-cache runs with
// in-process reuse.
type MemStore struct {
	mu   sync.Mutex
	fits map[string]*Entry
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{fits: make(map[string]*Entry)}
}

func (s *MemStore) Get(k Key) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fits[k.ID()]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	cp.Payload = slices.Clone(e.Payload)
	return &cp, nil
}

func (s *MemStore) Put(e *Entry) error {
	if e == nil {
		return errors.New("entry is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Payload = slices.Clone(e.Payload)
	cp.Size = len(cp.Payload)
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	s.fits[e.Key.ID()] = &cp
	return nil
}

func (s *MemStore) List() ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, 0, len(s.fits))
	for _, e := range s.fits {
		cp := *e
		cp.Payload = nil
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		if c := strings.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key.ID(), b.Key.ID())
	})
	return out, nil
}

func (s *MemStore) InvalidateDataset(datasetHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.fits {
		if e.Key.DatasetHash == datasetHash {
			delete(s.fits, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.fits)
	clear(s.fits)
	return n, nil
}

func (s *MemStore) Close() error { return nil }
