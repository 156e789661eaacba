package engine

import (
	"sync"

	"failguard/internal/support"
)

const shardCount = 32

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// shardedMap spreads keys over independently locked shards so unrelated
// addresses never contend on one lock.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	m := &shardedMap[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *shardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[support.HashString(key)%shardCount]
}

func (m *shardedMap[V]) Load(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

func (m *shardedMap[V]) Store(key string, v V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// LoadOrStore keeps an existing value and reports whether one was present.
func (m *shardedMap[V]) LoadOrStore(key string, v V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok {
		return existing, true
	}
	s.items[key] = v
	return v, false
}

func (m *shardedMap[V]) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	_, ok := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()
	return ok
}

// CompareAndDelete removes key only while match holds for its current value.
func (m *shardedMap[V]) CompareAndDelete(key string, match func(V) bool) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// Snapshot copies the values shard by shard; it is not a point-in-time view
// across shards.
func (m *shardedMap[V]) Snapshot() []V {
	out := make([]V, 0)
	for _, s := range m.shards {
		s.mu.RLock()
		for _, v := range s.items {
			out = append(out, v)
		}
		s.mu.RUnlock()
	}
	return out
}

func (m *shardedMap[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and frees it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
