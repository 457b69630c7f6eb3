package business

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory business store for demo/development.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*Business // by ID
	slugs      map[string]string    // slug → ID
}

// NewMemoryStore creates a new in-memory business store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*Business),
		slugs:      make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.slugs[b.Slug]; exists {
		return ErrSlugTaken
	}

	cp := *b
	m.businesses[b.ID] = &cp
	m.slugs[b.Slug] = b.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) GetBySlug(_ context.Context, slug string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.slugs[slug]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	b := m.businesses[id]
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.businesses[b.ID]; !ok {
		return ErrBusinessNotFound
	}
	cp := *b
	m.businesses[b.ID] = &cp
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Business, 0, len(m.businesses))
	for _, b := range m.businesses {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
