package fraud

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fideliqr/fideliqr/internal/accrual"
)

// MemoryStore is an in-memory fraud store for demo/development. Purchase
// queries delegate to the shared accrual memory store so both packages see
// the same purchase log.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    []*SecurityAlert
	purchases *accrual.MemoryStore
}

// NewMemoryStore creates a new in-memory fraud store backed by the given
// accrual store.
func NewMemoryStore(purchases *accrual.MemoryStore) *MemoryStore {
	return &MemoryStore{purchases: purchases}
}

func (m *MemoryStore) CreateAlert(_ context.Context, a *SecurityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, businessID string, limit int) ([]*SecurityAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SecurityAlert
	for _, a := range m.alerts {
		if a.BusinessID == businessID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) HasUnreviewedAlert(_ context.Context, businessID, customerID string, t AlertType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.alerts {
		if a.BusinessID == businessID && a.CustomerID == customerID && a.Type == t && !a.Reviewed {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ReviewAlert(_ context.Context, businessID, alertID string, at time.Time) (*SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.ID == alertID && a.BusinessID == businessID {
			if !a.Reviewed {
				a.Reviewed = true
				a.ReviewedAt = &at
			}
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (m *MemoryStore) CountPurchasesSince(ctx context.Context, businessID string, since time.Time) (map[string]int, error) {
	return m.purchases.CountPurchasesSince(ctx, businessID, since)
}

func (m *MemoryStore) MarkPurchaseSuspicious(ctx context.Context, businessID, purchaseID string) (*accrual.Purchase, error) {
	return m.purchases.MarkSuspicious(ctx, businessID, purchaseID)
}

var _ Store = (*MemoryStore)(nil)
