package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a concurrency-safe Repository backed by a map. Items keep their
// insertion order.
type Memory[T any, ID comparable] struct {
	mu    sync.RWMutex
	idOf  func(T) ID
	items map[ID]T
	order []ID
}

// NewMemory creates an empty Memory keyed by idOf.
func NewMemory[T any, ID comparable](idOf func(T) ID) *Memory[T, ID] {
	return &Memory[T, ID]{idOf: idOf, items: make(map[ID]T)}
}

// Compile-time interface check.
var _ Repository[string, string] = (*Memory[string, string])(nil)

func (m *Memory[T, ID]) Get(_ context.Context, id ID) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return item, nil
}

func (m *Memory[T, ID]) List(_ context.Context, opts ListOpts[T]) ([]T, error) {
	m.mu.RLock()
	var items []T
	for _, id := range m.order {
		item := m.items[id]
		if opts.Where == nil || opts.Where(item) {
			items = append(items, item)
		}
	}
	m.mu.RUnlock()

	if opts.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return opts.Less(items[i], items[j]) })
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil, nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

func (m *Memory[T, ID]) Create(_ context.Context, entity T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.idOf(entity)
	if _, ok := m.items[id]; ok {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrExists, id)
	}
	m.items[id] = entity
	m.order = append(m.order, id)
	return entity, nil
}

func (m *Memory[T, ID]) Update(_ context.Context, entity T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.idOf(entity)
	if _, ok := m.items[id]; !ok {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	m.items[id] = entity
	return entity, nil
}

func (m *Memory[T, ID]) Delete(_ context.Context, id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return nil
	}
	delete(m.items, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteWhere removes every item matching where and returns how many went.
func (m *Memory[T, ID]) DeleteWhere(_ context.Context, where func(T) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	n := 0
	for _, id := range m.order {
		if where(m.items[id]) {
			delete(m.items, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return n
}

// Find returns the first item, in insertion order, matching where.
func (m *Memory[T, ID]) Find(_ context.Context, where func(T) bool) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if item := m.items[id]; where(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Count returns the number of items matching where; nil counts everything.
func (m *Memory[T, ID]) Count(_ context.Context, where func(T) bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if where == nil {
		return len(m.items)
	}
	n := 0
	for _, item := range m.items {
		if where(item) {
			n++
		}
	}
	return n
}
