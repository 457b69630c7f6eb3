package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Host string
	Port int
	User string
	Pass string
	// From is the sender address shown to recipients. Defaults to User.
	From string
}

// Configured reports whether real sending is possible.
func (c EmailConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Pass != ""
}

// EmailSender sends plain-text email over SMTP. When SMTP credentials are
// missing it simulates the send and logs the message instead, so development
// setups see the full notification flow without a mail account.
type EmailSender struct {
	cfg    EmailConfig
	logger *slog.Logger
}

// NewEmailSender creates a new email sender.
func NewEmailSender(cfg EmailConfig, logger *slog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger}
}

// Send delivers one message. The context bounds the overall attempt; net/smtp
// has no context support, so cancellation is checked before dialing.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	if !s.cfg.Configured() {
		s.logger.Info("email send simulated (SMTP not configured)",
			"to", to, "subject", subject)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: FideliQR <%s>\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Debug("email sent", "to", to, "subject", subject)
	return nil
}
