package accrual

import "time"

// CheckCooldown reports whether a new purchase is allowed given the time of
// the customer's latest purchase. A customer with no prior purchase is always
// allowed, as is any customer when the window is zero. When denied, the
// second return value is the time left until the window expires.
//
// The cooldown clock is global per customer: one scan identity, one clock,
// regardless of which staff member or device records the purchase.
func CheckCooldown(last *time.Time, now time.Time, window time.Duration) (bool, time.Duration) {
	if window <= 0 || last == nil {
		return true, 0
	}
	elapsed := now.Sub(*last)
	if elapsed >= window {
		return true, 0
	}
	return false, window - elapsed
}
