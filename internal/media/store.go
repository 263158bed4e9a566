package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for an ID.
var ErrNotFound = errors.New("media not found")

// Store persists media records. Update must serialize concurrent callers
// for the same record: fn always sees the latest committed state and its
// changes are durable once Update returns.
type Store interface {
	Get(ctx context.Context, id int64) (*Media, error)
	Save(ctx context.Context, m *Media) error
	Update(ctx context.Context, id int64, fn func(m *Media) error) (*Media, error)
}

// KeyedMutex hands out one mutex per record ID.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for id and returns its release function.
func (k *KeyedMutex) Lock(id int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*keyedEntry)
	}
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// MemoryStore is an in-process Store used by tools and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*Media
	nextID  int64
	locks   KeyedMutex
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*Media)}
}

// Get returns a copy of the record with the given id.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

// Save inserts or replaces m. A zero ID is assigned the next free one.
func (s *MemoryStore) Save(_ context.Context, m *Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	} else if m.ID > s.nextID {
		s.nextID = m.ID
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.records[m.ID] = m.Clone()
	return nil
}

// Update applies fn to the stored record under the record's lock.
func (s *MemoryStore) Update(ctx context.Context, id int64, fn func(m *Media) error) (*Media, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(current); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, current); err != nil {
		return nil, err
	}
	return current.Clone(), nil
}

// Delete removes the record with the given id.
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// IDs returns every stored ID in ascending order.
func (s *MemoryStore) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
