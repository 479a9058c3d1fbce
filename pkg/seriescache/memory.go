package seriescache

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultMemorySize is the default byte budget of a Memory cache (64 MB).
const DefaultMemorySize = 64 * 1024 * 1024

const bytesPerKB = 1024.0

// evictionSampleSize is how many entries from the LRU tail compete for
// eviction.
const evictionSampleSize = 5

// Memory is an in-process, size-bounded LRU store of encoded payloads.
// Among the least recently used entries, large rarely-read ones go first.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]*memEntry
	head        *memEntry // Most recently used.
	tail        *memEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits   atomic.Int64
	misses atomic.Int64
}

type memEntry struct {
	key   string
	data  []byte
	reads int64
	prev  *memEntry
	next  *memEntry
}

func (e *memEntry) cost() float64 {
	kb := float64(len(e.data)) / bytesPerKB
	if kb < 1 {
		kb = 1
	}

	return float64(e.reads) / kb
}

// NewMemory creates a Memory store holding at most maxSize payload bytes.
func NewMemory(maxSize int64) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMemorySize
	}

	return &Memory{
		entries: make(map[string]*memEntry),
		maxSize: maxSize,
	}
}

// Get returns the payload stored under key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses.Add(1)

		return nil, false, nil
	}

	m.hits.Add(1)

	e.reads++
	m.moveToFront(e)

	return e.data, true, nil
}

// Set stores data under key. Payloads larger than the whole budget are
// dropped.
func (m *Memory) Set(_ context.Context, key string, data []byte) error {
	size := int64(len(data))
	if size > m.maxSize {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		m.currentSize += size - int64(len(e.data))
		e.data = data
		m.moveToFront(e)
	} else {
		e = &memEntry{key: key, data: data, reads: 1}
		m.entries[key] = e
		m.currentSize += size
		m.addToFront(e)
	}

	for m.currentSize > m.maxSize && m.tail != nil {
		m.evict()
	}

	return nil
}

// Stats returns hit and size counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Entries:     len(m.entries),
		CurrentSize: m.currentSize,
		MaxSize:     m.maxSize,
	}
}

// Clear drops every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memEntry)
	m.head, m.tail = nil, nil
	m.currentSize = 0
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Stats are cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate is hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

func (m *Memory) moveToFront(e *memEntry) {
	if e == m.head {
		return
	}

	m.unlink(e)
	m.addToFront(e)
}

func (m *Memory) addToFront(e *memEntry) {
	e.prev = nil
	e.next = m.head

	if m.head != nil {
		m.head.prev = e
	}

	m.head = e

	if m.tail == nil {
		m.tail = e
	}
}

func (m *Memory) unlink(e *memEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
}

func (m *Memory) evict() {
	victim := m.tail

	for e, n := m.tail.prev, 1; e != nil && n < evictionSampleSize; e, n = e.prev, n+1 {
		if e.cost() < victim.cost() {
			victim = e
		}
	}

	m.unlink(victim)
	delete(m.entries, victim.key)
	m.currentSize -= int64(len(victim.data))
}
