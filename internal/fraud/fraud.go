// Package fraud implements the on-demand fraud monitor.
//
// It watches purchase velocity (many scans from one customer in a short
// window usually means a shared or photographed code), manages the block
// workflow, and keeps a reviewable alert trail for the business owner.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fideliqr/fideliqr/internal/accrual"
	"github.com/fideliqr/fideliqr/internal/customer"
	"github.com/fideliqr/fideliqr/internal/idgen"
	"github.com/fideliqr/fideliqr/internal/metrics"
)

var (
	ErrAlertNotFound = errors.New("fraud: alert not found")
)

// AlertType classifies how an alert was raised.
type AlertType string

const (
	// AlertManual is raised when an owner blocks a customer by hand.
	AlertManual AlertType = "manual"
	// AlertVelocity is raised by the velocity scan.
	AlertVelocity AlertType = "velocity"
)

// SecurityAlert is one entry in a business's reviewable alert trail.
type SecurityAlert struct {
	ID          string     `json:"id"`
	BusinessID  string     `json:"businessId"`
	CustomerID  string     `json:"customerId,omitempty"`
	Type        AlertType  `json:"type"`
	Description string     `json:"description"`
	Reviewed    bool       `json:"reviewed"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

// CustomerVelocity pairs a customer with their purchase count inside the
// monitoring window.
type CustomerVelocity struct {
	Customer      *customer.Customer `json:"customer"`
	PurchaseCount int                `json:"purchaseCount"`
}

// Summary aggregates a business's security posture.
type Summary struct {
	UnreviewedAlerts int `json:"unreviewedAlerts"`
	BlockedCustomers int `json:"blockedCustomers"`
	OverThreshold    int `json:"overThreshold"`
}

// Config tunes the velocity scan.
type Config struct {
	// Window is how far back the scan looks.
	Window time.Duration
	// Threshold flags customers with strictly more purchases than this.
	Threshold int
}

// DefaultConfig returns the standard 24h/5-purchase scan settings.
func DefaultConfig() Config {
	return Config{Window: 24 * time.Hour, Threshold: 5}
}

// Events receives fraud events. Implementations must not block.
type Events interface {
	CustomerBlocked(businessID string, c *customer.Customer, reason string)
}

// Monitor runs fraud checks and the block workflow.
type Monitor struct {
	customers customer.Store
	store     Store
	cfg       Config
	events    Events
	logger    *slog.Logger
}

// NewMonitor creates a new fraud monitor. events may be nil.
func NewMonitor(customers customer.Store, store Store, cfg Config, events Events, logger *slog.Logger) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 5
	}
	return &Monitor{customers: customers, store: store, cfg: cfg, events: events, logger: logger}
}

// ScanSuspiciousActivity finds customers whose purchase count inside the
// window strictly exceeds the threshold. Blocked customers are excluded; they
// are already handled. Results are ordered by count descending, capped at 20.
//
// A first-time flag also raises a velocity alert, deduplicated against
// unreviewed velocity alerts so repeated scans do not spam the trail.
func (m *Monitor) ScanSuspiciousActivity(ctx context.Context, businessID string) ([]CustomerVelocity, error) {
	since := time.Now().Add(-m.cfg.Window)
	counts, err := m.store.CountPurchasesSince(ctx, businessID, since)
	if err != nil {
		return nil, err
	}

	customers, err := m.customers.List(ctx, businessID)
	if err != nil {
		return nil, err
	}

	var flagged []CustomerVelocity
	for _, c := range customers {
		count := counts[c.ID]
		if count <= m.cfg.Threshold || c.Blocked {
			continue
		}
		flagged = append(flagged, CustomerVelocity{Customer: c, PurchaseCount: count})
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].PurchaseCount > flagged[j].PurchaseCount })
	if len(flagged) > 20 {
		flagged = flagged[:20]
	}

	for _, f := range flagged {
		open, err := m.store.HasUnreviewedAlert(ctx, businessID, f.Customer.ID, AlertVelocity)
		if err != nil {
			return nil, err
		}
		if open {
			continue
		}
		alert := &SecurityAlert{
			ID:         idgen.WithPrefix("alr_"),
			BusinessID: businessID,
			CustomerID: f.Customer.ID,
			Type:       AlertVelocity,
			Description: fmt.Sprintf("%s made %d purchases in the last %s",
				f.Customer.Name, f.PurchaseCount, m.cfg.Window),
			CreatedAt: time.Now(),
		}
		if err := m.store.CreateAlert(ctx, alert); err != nil {
			return nil, err
		}
		metrics.SecurityAlertsTotal.WithLabelValues(string(AlertVelocity)).Inc()
	}

	return flagged, nil
}

// Block moves a customer to the blocked state. Blocking an already-blocked
// customer overwrites the reason and timestamp; every call raises one manual
// alert so the trail shows each decision.
func (m *Monitor) Block(ctx context.Context, businessID, customerID, reason string) (*customer.Customer, error) {
	c, err := m.customers.Get(ctx, businessID, customerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c.Blocked = true
	c.BlockReason = reason
	c.BlockedAt = &now
	if err := m.customers.Update(ctx, c); err != nil {
		return nil, err
	}

	alert := &SecurityAlert{
		ID:          idgen.WithPrefix("alr_"),
		BusinessID:  businessID,
		CustomerID:  c.ID,
		Type:        AlertManual,
		Description: fmt.Sprintf("%s blocked: %s", c.Name, reason),
		CreatedAt:   now,
	}
	if err := m.store.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	metrics.CustomersBlockedTotal.Inc()
	metrics.SecurityAlertsTotal.WithLabelValues(string(AlertManual)).Inc()
	m.logger.Info("customer blocked",
		"business_id", businessID, "customer_id", c.ID, "reason", reason)

	if m.events != nil {
		m.events.CustomerBlocked(businessID, c, reason)
	}

	return c, nil
}

// Unblock clears the blocked state. The block reason and timestamp are wiped;
// the manual alert that recorded the block stays in the trail. No new alert.
func (m *Monitor) Unblock(ctx context.Context, businessID, customerID string) (*customer.Customer, error) {
	c, err := m.customers.Get(ctx, businessID, customerID)
	if err != nil {
		return nil, err
	}

	c.Blocked = false
	c.BlockReason = ""
	c.BlockedAt = nil
	if err := m.customers.Update(ctx, c); err != nil {
		return nil, err
	}

	m.logger.Info("customer unblocked", "business_id", businessID, "customer_id", customerID)
	return c, nil
}

// ReviewAlert marks an alert as reviewed. Reviewing is terminal; reviewing an
// already-reviewed alert is a no-op that returns the alert unchanged.
func (m *Monitor) ReviewAlert(ctx context.Context, businessID, alertID string) (*SecurityAlert, error) {
	return m.store.ReviewAlert(ctx, businessID, alertID, time.Now())
}

// MarkPurchaseSuspicious flips the advisory fraud flag on a purchase. The
// purchase itself is untouched otherwise; counters never change.
func (m *Monitor) MarkPurchaseSuspicious(ctx context.Context, businessID, purchaseID string) (*accrual.Purchase, error) {
	return m.store.MarkPurchaseSuspicious(ctx, businessID, purchaseID)
}

// SecurityView is the owner's one-call security dashboard payload.
type SecurityView struct {
	Alerts             []*SecurityAlert     `json:"alerts"`
	BlockedCustomers   []*customer.Customer `json:"blockedCustomers"`
	SuspiciousActivity []CustomerVelocity   `json:"suspiciousActivity"`
	Summary            Summary              `json:"summary"`
}

// Security assembles the full security view: recent alerts (capped 50, newest
// first), blocked customers, velocity-flagged customers, and the aggregate
// summary.
func (m *Monitor) Security(ctx context.Context, businessID string) (*SecurityView, error) {
	alerts, err := m.store.ListAlerts(ctx, businessID, 50)
	if err != nil {
		return nil, err
	}

	flagged, err := m.ScanSuspiciousActivity(ctx, businessID)
	if err != nil {
		return nil, err
	}

	customers, err := m.customers.List(ctx, businessID)
	if err != nil {
		return nil, err
	}
	var blocked []*customer.Customer
	for _, c := range customers {
		if c.Blocked {
			blocked = append(blocked, c)
		}
	}

	unreviewed := 0
	for _, a := range alerts {
		if !a.Reviewed {
			unreviewed++
		}
	}

	return &SecurityView{
		Alerts:             alerts,
		BlockedCustomers:   blocked,
		SuspiciousActivity: flagged,
		Summary: Summary{
			UnreviewedAlerts: unreviewed,
			BlockedCustomers: len(blocked),
			OverThreshold:    len(flagged),
		},
	}, nil
}
