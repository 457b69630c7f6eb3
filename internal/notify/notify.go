// Package notify delivers owner and customer notifications over email and
// telegram.
//
// All methods are fire-and-forget: delivery runs in a goroutine with its own
// timeout, detached from the request that triggered it. A purchase is already
// durable by the time a notification fires, so failures are logged and
// counted but never surfaced to the scanner.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fideliqr/fideliqr/internal/business"
	"github.com/fideliqr/fideliqr/internal/customer"
	"github.com/fideliqr/fideliqr/internal/metrics"
)

const dispatchTimeout = 10 * time.Second

// Notifier fans notifications out to the configured channels.
type Notifier struct {
	email    *EmailSender
	telegram *TelegramSender
	logger   *slog.Logger
}

// New creates a new notifier. Either sender may be nil to disable the channel
// globally; per-business flags gate delivery on top of that.
func New(email *EmailSender, telegram *TelegramSender, logger *slog.Logger) *Notifier {
	return &Notifier{email: email, telegram: telegram, logger: logger}
}

// NotifyNewCustomer tells the owner about an enrollment.
func (n *Notifier) NotifyNewCustomer(b *business.Business, c *customer.Customer) {
	subject := fmt.Sprintf("New customer enrolled - %s", b.Name)
	body := fmt.Sprintf("You have a new customer!\n\nName: %s\nEmail: %s\n\nOpen your dashboard for details.",
		c.Name, c.Email)
	n.sendOwnerEmail(b, subject, body)

	text := fmt.Sprintf("<b>New customer at %s</b>\n\nName: %s\nEmail: %s",
		b.Name, c.Name, c.Email)
	n.sendTelegram(b, text)
}

// NotifyPurchase tells the owner about a recorded purchase. Owners get every
// purchase; customers are only contacted when a reward unlocks.
func (n *Notifier) NotifyPurchase(b *business.Business, c *customer.Customer, purchaseNumber int) {
	text := fmt.Sprintf("<b>New purchase at %s</b>\n\nCustomer: %s\nPurchase #%d",
		b.Name, c.Name, purchaseNumber)
	n.sendTelegram(b, text)
}

// NotifyReward congratulates the customer and reminds the owner to hand over
// the prize.
func (n *Notifier) NotifyReward(b *business.Business, c *customer.Customer, totalPurchases int) {
	custSubject := fmt.Sprintf("Congratulations! You earned a reward at %s", b.Name)
	custBody := fmt.Sprintf("Hi %s!\n\nYou have reached %d purchases at %s and earned a reward.\n\nShow this at the counter to claim it.\n\nThanks for coming back!",
		c.Name, totalPurchases, b.Name)
	n.sendCustomerEmail(b, c, custSubject, custBody)

	ownerSubject := fmt.Sprintf("Customer reached a reward - %s", b.Name)
	ownerBody := fmt.Sprintf("Customer %s (%s) reached %d purchases and earned a reward.\n\nRemember to hand over the prize when they claim it.",
		c.Name, c.Email, totalPurchases)
	n.sendOwnerEmail(b, ownerSubject, ownerBody)

	text := fmt.Sprintf("<b>Reward unlocked at %s!</b>\n\nCustomer: %s\nEmail: %s\nTotal purchases: %d\n\nHand over the prize when they claim it.",
		b.Name, c.Name, c.Email, totalPurchases)
	n.sendTelegram(b, text)
}

func (n *Notifier) sendOwnerEmail(b *business.Business, subject, body string) {
	if n.email == nil || !b.Settings.EmailEnabled {
		return
	}
	n.dispatch("email", func(ctx context.Context) error {
		return n.email.Send(ctx, b.NotificationEmail(), subject, body)
	})
}

func (n *Notifier) sendCustomerEmail(b *business.Business, c *customer.Customer, subject, body string) {
	if n.email == nil || !b.Settings.EmailEnabled {
		return
	}
	n.dispatch("email", func(ctx context.Context) error {
		return n.email.Send(ctx, c.Email, subject, body)
	})
}

func (n *Notifier) sendTelegram(b *business.Business, text string) {
	if n.telegram == nil || !b.Settings.TelegramEnabled {
		return
	}
	token := b.Settings.TelegramToken
	chatID := b.Settings.TelegramChatID
	n.dispatch("telegram", func(ctx context.Context) error {
		return n.telegram.Send(ctx, token, chatID, text)
	})
}

// dispatch runs the send in the background with its own deadline. The
// request context is deliberately not used: the caller must not wait on, or
// be failed by, notification delivery.
func (n *Notifier) dispatch(channel string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.NotificationsTotal.WithLabelValues(channel, "error").Inc()
			n.logger.Warn("notification delivery failed", "channel", channel, "error", err)
			return
		}
		metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
	}()
}
