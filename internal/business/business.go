// Package business manages the merchants enrolled on the loyalty platform.
//
// A business owns its customers, its reward threshold (every Nth purchase
// unlocks a reward), its purchase cooldown, and its notification channels.
package business

import (
	"errors"
	"time"
)

// Errors
var (
	ErrBusinessNotFound = errors.New("business: not found")
	ErrSlugTaken        = errors.New("business: slug already taken")
	ErrInvalidThreshold = errors.New("business: reward threshold must be at least 1")
	ErrInvalidCooldown  = errors.New("business: cooldown minutes must not be negative")
)

// Settings stores the per-business loyalty and notification configuration.
type Settings struct {
	// RewardThreshold is N in "every Nth purchase unlocks a reward". Minimum 1.
	RewardThreshold int `json:"rewardThreshold"`
	// CooldownMinutes is the minimum gap between two purchases for one customer.
	// Zero disables the cooldown.
	CooldownMinutes int `json:"cooldownMinutes"`
	// EmailEnabled turns owner email notifications on.
	EmailEnabled bool `json:"emailEnabled"`
	// NotifyEmail overrides the owner email as notification destination.
	NotifyEmail string `json:"notifyEmail,omitempty"`
	// TelegramEnabled turns telegram notifications on.
	TelegramEnabled bool `json:"telegramEnabled"`
	// TelegramToken is the business's own bot token. Falls back to the env default.
	TelegramToken string `json:"telegramToken,omitempty"`
	// TelegramChatID is the chat the bot posts to. Falls back to the env default.
	TelegramChatID string `json:"telegramChatId,omitempty"`
}

// Validate checks settings bounds.
func (s Settings) Validate() error {
	if s.RewardThreshold < 1 {
		return ErrInvalidThreshold
	}
	if s.CooldownMinutes < 0 {
		return ErrInvalidCooldown
	}
	return nil
}

// Business represents a merchant running a loyalty program.
type Business struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OwnerEmail string    `json:"ownerEmail"`
	Settings   Settings  `json:"settings"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NotificationEmail returns the address owner notifications go to.
func (b *Business) NotificationEmail() string {
	if b.Settings.NotifyEmail != "" {
		return b.Settings.NotifyEmail
	}
	return b.OwnerEmail
}
