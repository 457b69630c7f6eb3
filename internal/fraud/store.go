package fraud

import (
	"context"
	"time"

	"github.com/fideliqr/fideliqr/internal/accrual"
)

// Store persists security alerts and runs the fraud queries over the
// purchase log.
type Store interface {
	CreateAlert(ctx context.Context, a *SecurityAlert) error

	// ListAlerts returns alerts for a business, newest first, up to limit.
	ListAlerts(ctx context.Context, businessID string, limit int) ([]*SecurityAlert, error)

	// HasUnreviewedAlert reports whether the customer has an open alert of
	// the given type. Used to deduplicate velocity alerts across scans.
	HasUnreviewedAlert(ctx context.Context, businessID, customerID string, t AlertType) (bool, error)

	// ReviewAlert marks an alert reviewed at the given time. Idempotent.
	ReviewAlert(ctx context.Context, businessID, alertID string, at time.Time) (*SecurityAlert, error)

	// CountPurchasesSince returns per-customer purchase counts for a business
	// since the given time.
	CountPurchasesSince(ctx context.Context, businessID string, since time.Time) (map[string]int, error)

	// MarkPurchaseSuspicious flips the advisory flag on a purchase.
	MarkPurchaseSuspicious(ctx context.Context, businessID, purchaseID string) (*accrual.Purchase, error)
}
