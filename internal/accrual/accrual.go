// Package accrual implements the purchase accrual engine.
//
// Flow:
//  1. Counter staff scans a customer's code (or types their email)
//  2. Block and cooldown guards run against the customer's latest state
//  3. A single atomic step inserts the purchase and bumps the counters
//  4. Every Nth purchase flips isReward and grants a pending reward
//  5. Notifications and events fire after commit, detached from the request
package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/customer"
	"github.com/fideliqr/fideliqr/internal/idgen"
	"github.com/fideliqr/fideliqr/internal/metrics"
	"github.com/fideliqr/fideliqr/internal/retry"
	"github.com/fideliqr/fideliqr/internal/traces"
	"github.com/fideliqr/fideliqr/internal/validation"
)

var (
	ErrNoPendingReward  = errors.New("accrual: no pending reward to redeem")
	ErrPurchaseNotFound = errors.New("accrual: purchase not found")
	ErrStoreUnavailable = errors.New("accrual: store unavailable")
)

// BlockedError rejects a purchase for a blocked customer.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Reason == "" {
		return "accrual: customer is blocked"
	}
	return "accrual: customer is blocked: " + e.Reason
}

// CooldownError rejects a purchase that arrives before the cooldown expires.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("accrual: cooldown active, %d minute(s) remaining", e.RemainingMinutes())
}

// RemainingMinutes returns the remaining cooldown rounded up to whole minutes,
// which is what the counter staff sees.
func (e *CooldownError) RemainingMinutes() int {
	m := int(math.Ceil(e.Remaining.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

// Purchase is one recorded scan. Immutable once written, except the
// suspicious flag the fraud monitor may set later.
type Purchase struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	BusinessID string `json:"businessId"`
	// PurchaseNumber is 1-based and equals the customer's total at creation.
	PurchaseNumber int       `json:"purchaseNumber"`
	IsReward       bool      `json:"isReward"`
	Suspicious     bool      `json:"suspicious"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Lookup identifies the customer being scanned. Exactly one field is set.
type Lookup struct {
	ScanCode string
	Email    string
}

// Outcome is the result of a successfully recorded purchase.
type Outcome struct {
	Purchase       *Purchase          `json:"purchase"`
	Customer       *customer.Customer `json:"customer"`
	RewardUnlocked bool               `json:"rewardUnlocked"`
}

// Events receives post-commit accrual events. Implementations must not block.
type Events interface {
	PurchaseRecorded(b *business.Business, c *customer.Customer, p *Purchase)
	RewardUnlocked(b *business.Business, c *customer.Customer, p *Purchase)
}

// Engine runs the accrual pipeline.
type Engine struct {
	businesses business.Store
	customers  customer.Store
	store      Store
	events     Events
	logger     *slog.Logger
}

// New creates a new accrual engine. events may be nil.
func New(businesses business.Store, customers customer.Store, store Store, events Events, logger *slog.Logger) *Engine {
	return &Engine{
		businesses: businesses,
		customers:  customers,
		store:      store,
		events:     events,
		logger:     logger,
	}
}

// RegisterPurchase records one scan for the customer identified by lookup.
//
// Returns business.ErrBusinessNotFound, customer.ErrCustomerNotFound,
// *BlockedError, *CooldownError, or ErrStoreUnavailable. The guards run twice:
// once here against a snapshot, and again inside the store under row lock, so
// two near-simultaneous scans cannot both land inside the cooldown window.
func (e *Engine) RegisterPurchase(ctx context.Context, businessID string, lookup Lookup) (*Outcome, error) {
	ctx, span := traces.StartSpan(ctx, "accrual.RegisterPurchase", traces.BusinessID(businessID))
	defer span.End()

	b, err := e.businesses.Get(ctx, businessID)
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}
	if !b.Active {
		metrics.PurchasesTotal.WithLabelValues("not_found").Inc()
		return nil, business.ErrBusinessNotFound
	}

	cust, err := e.findCustomer(ctx, businessID, lookup)
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}
	span.SetAttributes(traces.CustomerID(cust.ID))

	// Block guard. Re-checked under lock inside the store.
	if cust.Blocked {
		metrics.PurchasesTotal.WithLabelValues("blocked").Inc()
		return nil, &BlockedError{Reason: cust.BlockReason}
	}

	// Cooldown pre-check against the latest purchase. The store re-validates
	// under row lock; this one exists to fail fast without opening a
	// transaction.
	window := time.Duration(b.Settings.CooldownMinutes) * time.Minute
	last, err := e.store.LastPurchaseTime(ctx, cust.ID)
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ok, remaining := CheckCooldown(last, time.Now(), window); !ok {
		metrics.PurchasesTotal.WithLabelValues("cooldown").Inc()
		return nil, &CooldownError{Remaining: remaining}
	}

	params := RecordParams{
		PurchaseID:     idgen.WithPrefix("pur_"),
		BusinessID:     b.ID,
		CustomerID:     cust.ID,
		Threshold:      b.Settings.RewardThreshold,
		CooldownWindow: window,
		Now:            time.Now(),
	}

	var purchase *Purchase
	var updated *customer.Customer
	err = retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		p, c, err := e.store.Record(ctx, params)
		if err != nil {
			// Business rejections are final; only transient store errors retry.
			var be *BlockedError
			var ce *CooldownError
			if errors.As(err, &be) || errors.As(err, &ce) || errors.Is(err, customer.ErrCustomerNotFound) {
				return retry.Permanent(err)
			}
			return err
		}
		purchase, updated = p, c
		return nil
	})
	if err != nil {
		var be *BlockedError
		var ce *CooldownError
		switch {
		case errors.As(err, &be):
			metrics.PurchasesTotal.WithLabelValues("blocked").Inc()
			return nil, err
		case errors.As(err, &ce):
			metrics.PurchasesTotal.WithLabelValues("cooldown").Inc()
			return nil, err
		case errors.Is(err, customer.ErrCustomerNotFound):
			metrics.PurchasesTotal.WithLabelValues("not_found").Inc()
			return nil, err
		default:
			metrics.PurchasesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	span.SetAttributes(traces.PurchaseNumber(purchase.PurchaseNumber), traces.RewardUnlocked(purchase.IsReward))

	if purchase.IsReward {
		metrics.PurchasesTotal.WithLabelValues("reward").Inc()
		metrics.RewardsUnlockedTotal.Inc()
	} else {
		metrics.PurchasesTotal.WithLabelValues("recorded").Inc()
	}

	e.logger.Info("purchase recorded",
		"business_id", b.ID,
		"customer_id", updated.ID,
		"purchase_number", purchase.PurchaseNumber,
		"reward_unlocked", purchase.IsReward)

	// Post-commit events. The purchase is already durable; event delivery
	// failures must never surface to the scanner.
	if e.events != nil {
		e.events.PurchaseRecorded(b, updated, purchase)
		if purchase.IsReward {
			e.events.RewardUnlocked(b, updated, purchase)
		}
	}

	return &Outcome{Purchase: purchase, Customer: updated, RewardUnlocked: purchase.IsReward}, nil
}

// RedeemReward consumes exactly one pending reward for the customer.
func (e *Engine) RedeemReward(ctx context.Context, businessID, customerID string) (*customer.Customer, error) {
	ctx, span := traces.StartSpan(ctx, "accrual.RedeemReward",
		traces.BusinessID(businessID), traces.CustomerID(customerID))
	defer span.End()

	cust, err := e.store.Redeem(ctx, businessID, customerID)
	if err != nil {
		return nil, err
	}

	metrics.RewardsRedeemedTotal.Inc()
	e.logger.Info("reward redeemed",
		"business_id", businessID,
		"customer_id", customerID,
		"pending_rewards", cust.PendingRewards,
		"redeemed_rewards", cust.RedeemedRewards)

	return cust, nil
}

// History returns purchases for a business, newest first, optionally filtered
// by customer. limit is capped at 100.
func (e *Engine) History(ctx context.Context, businessID, customerID string, limit int) ([]*Purchase, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return e.store.ListPurchases(ctx, businessID, customerID, limit)
}

func (e *Engine) findCustomer(ctx context.Context, businessID string, lookup Lookup) (*customer.Customer, error) {
	if lookup.ScanCode != "" {
		return e.customers.GetByScanCode(ctx, businessID, lookup.ScanCode)
	}
	if lookup.Email != "" {
		return e.customers.GetByEmail(ctx, businessID, validation.NormalizeEmail(lookup.Email))
	}
	return nil, customer.ErrCustomerNotFound
}
