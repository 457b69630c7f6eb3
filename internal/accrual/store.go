package accrual

import (
	"context"
	"time"

	"github.com/fideliqr/fideliqr/internal/customer"
)

// RecordParams carries everything the store needs to record one purchase
// atomically.
type RecordParams struct {
	PurchaseID string
	BusinessID string
	CustomerID string
	// Threshold is N in "every Nth purchase unlocks a reward".
	Threshold int
	// CooldownWindow is re-validated under lock. Zero disables the check.
	CooldownWindow time.Duration
	Now            time.Time
}

// Store persists purchases and performs the atomic accrual step.
type Store interface {
	// Record inserts the purchase and updates the customer's counters in one
	// atomic step. It re-checks the block flag and the cooldown against the
	// latest purchase under lock, returning *BlockedError or *CooldownError
	// when a concurrent scan got there first.
	Record(ctx context.Context, params RecordParams) (*Purchase, *customer.Customer, error)

	// Redeem atomically consumes one pending reward. Returns
	// ErrNoPendingReward when the counter is zero and
	// customer.ErrCustomerNotFound when the customer does not exist.
	Redeem(ctx context.Context, businessID, customerID string) (*customer.Customer, error)

	// LastPurchaseTime returns the time of the customer's most recent
	// purchase, or nil if they have none.
	LastPurchaseTime(ctx context.Context, customerID string) (*time.Time, error)

	// ListPurchases returns purchases for a business, newest first. customerID
	// is an optional filter.
	ListPurchases(ctx context.Context, businessID, customerID string, limit int) ([]*Purchase, error)
}
