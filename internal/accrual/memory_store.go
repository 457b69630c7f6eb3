package accrual

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fideliqr/fideliqr/internal/customer"
)

// MemoryStore is an in-memory accrual store for demo/development. It owns the
// purchase log and mutates customer counters through the shared customer
// store; its mutex serializes the whole accrual step, standing in for the
// row locks Postgres provides.
type MemoryStore struct {
	mu        sync.Mutex
	customers customer.Store
	purchases []*Purchase
}

// NewMemoryStore creates a new in-memory accrual store backed by the given
// customer store.
func NewMemoryStore(customers customer.Store) *MemoryStore {
	return &MemoryStore{customers: customers}
}

func (m *MemoryStore) Record(ctx context.Context, params RecordParams) (*Purchase, *customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cust, err := m.customers.Get(ctx, params.BusinessID, params.CustomerID)
	if err != nil {
		return nil, nil, err
	}

	if cust.Blocked {
		return nil, nil, &BlockedError{Reason: cust.BlockReason}
	}

	if last := m.lastPurchaseLocked(cust.ID); last != nil {
		if ok, remaining := CheckCooldown(last, params.Now, params.CooldownWindow); !ok {
			return nil, nil, &CooldownError{Remaining: remaining}
		}
	}

	newTotal := cust.TotalPurchases + 1
	isReward := params.Threshold >= 1 && newTotal%params.Threshold == 0

	cust.TotalPurchases = newTotal
	if isReward {
		cust.PendingRewards++
	}
	// Counters-only write-back: a block landing between our Get and this
	// update must survive, so the full snapshot is never written back.
	if err := m.customers.UpdateCounters(ctx, cust.ID,
		cust.TotalPurchases, cust.PendingRewards, cust.RedeemedRewards); err != nil {
		return nil, nil, err
	}

	p := &Purchase{
		ID:             params.PurchaseID,
		CustomerID:     cust.ID,
		BusinessID:     params.BusinessID,
		PurchaseNumber: newTotal,
		IsReward:       isReward,
		CreatedAt:      params.Now,
	}
	m.purchases = append(m.purchases, p)

	cp := *p
	return &cp, cust, nil
}

func (m *MemoryStore) Redeem(ctx context.Context, businessID, customerID string) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cust, err := m.customers.Get(ctx, businessID, customerID)
	if err != nil {
		return nil, err
	}
	if cust.PendingRewards < 1 {
		return nil, ErrNoPendingReward
	}

	cust.PendingRewards--
	cust.RedeemedRewards++
	if err := m.customers.UpdateCounters(ctx, cust.ID,
		cust.TotalPurchases, cust.PendingRewards, cust.RedeemedRewards); err != nil {
		return nil, err
	}
	return cust, nil
}

func (m *MemoryStore) LastPurchaseTime(_ context.Context, customerID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := m.lastPurchaseLocked(customerID)
	if last == nil {
		return nil, nil
	}
	t := *last
	return &t, nil
}

func (m *MemoryStore) ListPurchases(_ context.Context, businessID, customerID string, limit int) ([]*Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Purchase
	for _, p := range m.purchases {
		if p.BusinessID != businessID {
			continue
		}
		if customerID != "" && p.CustomerID != customerID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSuspicious flips the advisory fraud flag on a purchase. Used by the
// fraud monitor's memory store, which shares this purchase log.
func (m *MemoryStore) MarkSuspicious(_ context.Context, businessID, purchaseID string) (*Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.purchases {
		if p.ID == purchaseID && p.BusinessID == businessID {
			p.Suspicious = true
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPurchaseNotFound
}

// CountPurchasesSince returns per-customer purchase counts for a business
// within the window. Used by the fraud monitor's velocity scan.
func (m *MemoryStore) CountPurchasesSince(_ context.Context, businessID string, since time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, p := range m.purchases {
		if p.BusinessID == businessID && !p.CreatedAt.Before(since) {
			counts[p.CustomerID]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) lastPurchaseLocked(customerID string) *time.Time {
	var last *time.Time
	for _, p := range m.purchases {
		if p.CustomerID != customerID {
			continue
		}
		if last == nil || p.CreatedAt.After(*last) {
			t := p.CreatedAt
			last = &t
		}
	}
	return last
}

var _ Store = (*MemoryStore)(nil)
