package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/fideliqr/fideliqr/internal/idgen"
	"github.com/fideliqr/fideliqr/internal/metrics"
)

// Emitter wraps a Dispatcher to emit loyalty lifecycle events.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(businessID string, eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("attempted").Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	// Deliveries run in their own goroutines with their own deadlines; this
	// context only covers the subscription lookup.
	if err := e.d.DispatchToBusiness(context.Background(), businessID, event); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "business", businessID, "error", err)
	}
}

// EmitPurchaseRecorded emits a purchase.recorded event.
func (e *Emitter) EmitPurchaseRecorded(businessID, customerID, purchaseID string, purchaseNumber int) {
	e.emit(businessID, EventPurchaseRecorded, map[string]interface{}{
		"businessId":     businessID,
		"customerId":     customerID,
		"purchaseId":     purchaseID,
		"purchaseNumber": purchaseNumber,
	})
}

// EmitRewardUnlocked emits a reward.unlocked event.
func (e *Emitter) EmitRewardUnlocked(businessID, customerID, purchaseID string, totalPurchases, pendingRewards int) {
	e.emit(businessID, EventRewardUnlocked, map[string]interface{}{
		"businessId":     businessID,
		"customerId":     customerID,
		"purchaseId":     purchaseID,
		"totalPurchases": totalPurchases,
		"pendingRewards": pendingRewards,
	})
}

// EmitCustomerEnrolled emits a customer.enrolled event.
func (e *Emitter) EmitCustomerEnrolled(businessID, customerID, name, email string) {
	e.emit(businessID, EventCustomerEnrolled, map[string]interface{}{
		"businessId": businessID,
		"customerId": customerID,
		"name":       name,
		"email":      email,
	})
}

// EmitCustomerBlocked emits a customer.blocked event.
func (e *Emitter) EmitCustomerBlocked(businessID, customerID, reason string) {
	e.emit(businessID, EventCustomerBlocked, map[string]interface{}{
		"businessId": businessID,
		"customerId": customerID,
		"reason":     reason,
	})
}
