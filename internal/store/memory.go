package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	fetchedAt time.Time
	tombstone bool
	expires   time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu        sync.Mutex
	entries   map[Key]memoryEntry
	retention time.Duration
	now       func() time.Time
}

// NewMemory creates an empty in-process store. A zero retention uses
// DefaultRetention.
func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		entries:   make(map[Key]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
}

var _ Store = (*Memory)(nil)

// lookup returns the live entry for key, dropping it when expired.
// Caller holds mu.
func (m *Memory) lookup(key Key) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key Key) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	if !ok || e.tombstone {
		return Entry{}, ErrNotFound
	}
	return Entry{Data: append([]byte(nil), e.data...), FetchedAt: e.fetchedAt}, nil
}

func (m *Memory) Put(_ context.Context, key Key, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.lookup(key); ok && cur.fetchedAt.After(e.FetchedAt) {
		return ErrStale
	}
	m.entries[key] = memoryEntry{
		data:      append([]byte(nil), e.Data...),
		fetchedAt: e.FetchedAt,
		expires:   m.now().Add(m.retention),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.lookup(key); ok && cur.fetchedAt.After(at) {
		// A fetch newer than the deletion already landed.
		return nil
	}
	m.entries[key] = memoryEntry{
		fetchedAt: at,
		tombstone: true,
		expires:   m.now().Add(m.retention),
	}
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
