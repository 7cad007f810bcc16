package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemorySessionStore keeps snapshots for the lifetime of the process.
type MemorySessionStore struct {
	snapshots map[string][]byte
	mu        sync.RWMutex
	closed    bool
}

// NewMemorySessionStore creates an in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{snapshots: make(map[string][]byte)}
}

// Save stores a deep copy so later session mutations don't leak in.
func (s *MemorySessionStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	if err := validateSnapshot(sessionID, snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.snapshots[sessionID] = data
	return nil
}

func (s *MemorySessionStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, ok := s.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.snapshots, sessionID)
	return nil
}

func (s *MemorySessionStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemorySessionStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
