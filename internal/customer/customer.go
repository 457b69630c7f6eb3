// Package customer manages loyalty program members.
//
// Each customer belongs to exactly one business, is identified at the counter
// by a unique scan code, and carries the purchase/reward counters the accrual
// engine updates.
package customer

import (
	"errors"
	"time"
)

// Errors
var (
	ErrCustomerNotFound = errors.New("customer: not found")
	ErrEmailTaken       = errors.New("customer: email already enrolled for this business")
	ErrScanCodeTaken    = errors.New("customer: scan code already in use")
)

// Customer represents an enrolled loyalty program member.
type Customer struct {
	ID         string `json:"id"`
	BusinessID string `json:"businessId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	// ScanCode is the opaque identifier presented at the counter.
	ScanCode string `json:"scanCode"`

	TotalPurchases  int `json:"totalPurchases"`
	PendingRewards  int `json:"pendingRewards"`
	RedeemedRewards int `json:"redeemedRewards"`

	Blocked     bool       `json:"blocked"`
	BlockReason string     `json:"blockReason,omitempty"`
	BlockedAt   *time.Time `json:"blockedAt,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
