package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryEntries = 10000

// Memory is a size-bounded LRU backend for the CLI and single-node servers.
// Expired entries are dropped when read.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recently used
	items    map[string]*list.Element
	now      func() time.Time
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates a Memory backend holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultMemoryEntries
	}
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get implements Backend.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	item := el.Value.(*memoryItem)
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		m.remove(el)
		return nil, ErrCacheMiss
	}
	m.order.MoveToFront(el)
	return item.value, nil
}

// Set implements Backend.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &memoryItem{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		el.Value = item
		m.order.MoveToFront(el)
		return nil
	}

	m.items[key] = m.order.PushFront(item)
	for m.order.Len() > m.capacity {
		m.remove(m.order.Back())
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}
