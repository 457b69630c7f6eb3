package customer

import "context"

// Store persists customer data.
//
// Lookups are always scoped to a business: a scan code or email presented to
// the wrong business resolves to ErrCustomerNotFound, never to another
// tenant's customer.
type Store interface {
	Create(ctx context.Context, c *Customer) error
	Get(ctx context.Context, businessID, id string) (*Customer, error)
	GetByScanCode(ctx context.Context, businessID, scanCode string) (*Customer, error)
	GetByEmail(ctx context.Context, businessID, email string) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
	// UpdateCounters persists only the purchase counters. Accrual uses this so
	// a concurrent block or profile change is never clobbered by a stale
	// customer snapshot written back whole.
	UpdateCounters(ctx context.Context, id string, totalPurchases, pendingRewards, redeemedRewards int) error
	List(ctx context.Context, businessID string) ([]*Customer, error)
}
