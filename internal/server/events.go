package server

import (
	"github.com/fideliqr/fideliqr/internal/accrual"
	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/customer"
	"github.com/fideliqr/fideliqr/internal/notify"
	"github.com/fideliqr/fideliqr/internal/realtime"
	"github.com/fideliqr/fideliqr/internal/webhooks"
)

// eventBridge fans domain events out to notifications, webhooks and the live
// feed. It implements accrual.Events, customer.Events and fraud.Events so the
// domain packages stay decoupled from the delivery machinery.
type eventBridge struct {
	notifier *notify.Notifier
	emitter  *webhooks.Emitter
	hub      *realtime.Hub
}

// PurchaseRecorded implements accrual.Events.
func (e *eventBridge) PurchaseRecorded(b *business.Business, c *customer.Customer, p *accrual.Purchase) {
	e.notifier.NotifyPurchase(b, c, p.PurchaseNumber)
	e.emitter.EmitPurchaseRecorded(b.ID, c.ID, p.ID, p.PurchaseNumber)
	e.hub.BroadcastPurchase(b.ID, map[string]interface{}{
		"customerId":     c.ID,
		"customerName":   c.Name,
		"purchaseId":     p.ID,
		"purchaseNumber": p.PurchaseNumber,
	})
}

// RewardUnlocked implements accrual.Events.
func (e *eventBridge) RewardUnlocked(b *business.Business, c *customer.Customer, p *accrual.Purchase) {
	e.notifier.NotifyReward(b, c, c.TotalPurchases)
	e.emitter.EmitRewardUnlocked(b.ID, c.ID, p.ID, c.TotalPurchases, c.PendingRewards)
	e.hub.BroadcastReward(b.ID, map[string]interface{}{
		"customerId":     c.ID,
		"customerName":   c.Name,
		"totalPurchases": c.TotalPurchases,
		"pendingRewards": c.PendingRewards,
	})
}

// CustomerEnrolled implements customer.Events.
func (e *eventBridge) CustomerEnrolled(b *business.Business, c *customer.Customer) {
	e.notifier.NotifyNewCustomer(b, c)
	e.emitter.EmitCustomerEnrolled(b.ID, c.ID, c.Name, c.Email)
}

// CustomerBlocked implements fraud.Events.
func (e *eventBridge) CustomerBlocked(businessID string, c *customer.Customer, reason string) {
	e.emitter.EmitCustomerBlocked(businessID, c.ID, reason)
	e.hub.BroadcastBlocked(businessID, map[string]interface{}{
		"customerId":   c.ID,
		"customerName": c.Name,
		"reason":       reason,
	})
}
