package customer

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory customer store for demo/development.
type MemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer // by ID
	emails    map[string]string    // businessID+"\x00"+email → ID
	scanCodes map[string]string    // scanCode → ID
}

// NewMemoryStore creates a new in-memory customer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[string]*Customer),
		emails:    make(map[string]string),
		scanCodes: make(map[string]string),
	}
}

func emailKey(businessID, email string) string {
	return businessID + "\x00" + email
}

func (m *MemoryStore) Create(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[emailKey(c.BusinessID, c.Email)]; exists {
		return ErrEmailTaken
	}
	if _, exists := m.scanCodes[c.ScanCode]; exists {
		return ErrScanCodeTaken
	}

	cp := *c
	m.customers[c.ID] = &cp
	m.emails[emailKey(c.BusinessID, c.Email)] = c.ID
	m.scanCodes[c.ScanCode] = c.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, businessID, id string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok || c.BusinessID != businessID {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetByScanCode(_ context.Context, businessID, scanCode string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.scanCodes[scanCode]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	c := m.customers[id]
	// Scan codes are globally unique but a foreign business must not see a hit.
	if c.BusinessID != businessID {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, businessID, email string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[emailKey(businessID, email)]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *m.customers[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.customers[c.ID]
	if !ok {
		return ErrCustomerNotFound
	}

	// Keep the scan code index in sync on regeneration.
	if old.ScanCode != c.ScanCode {
		if _, exists := m.scanCodes[c.ScanCode]; exists {
			return ErrScanCodeTaken
		}
		delete(m.scanCodes, old.ScanCode)
		m.scanCodes[c.ScanCode] = c.ID
	}

	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateCounters(_ context.Context, id string, totalPurchases, pendingRewards, redeemedRewards int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return ErrCustomerNotFound
	}
	c.TotalPurchases = totalPurchases
	c.PendingRewards = pendingRewards
	c.RedeemedRewards = redeemedRewards
	return nil
}

func (m *MemoryStore) List(_ context.Context, businessID string) ([]*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Customer
	for _, c := range m.customers {
		if c.BusinessID == businessID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
