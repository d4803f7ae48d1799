// Package providers adapts the low-level pkg senders to the dispatcher's
// Sender interface.
package providers

import (
	"context"
	"fmt"

	"alerting-service/internal/config"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/models"
	"alerting-service/pkg/email"
)

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	cfg config.Config
}

// NewEmailSender returns an email sender, or nil when SMTP is not
// configured.
func NewEmailSender(cfg config.Config) *EmailSender {
	if cfg.Email.SMTPServer == "" || cfg.Email.SMTPPort == 0 {
		return nil
	}
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (s *EmailSender) Send(_ context.Context, msg dispatch.Message, rcpt models.Recipient) error {
	if rcpt.Email == "" {
		return fmt.Errorf("recipient %s has no email address", rcpt.ID)
	}
	from := s.cfg.Email.Username
	if s.cfg.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.Email.FromName, s.cfg.Email.Username)
	}
	err := email.Send(
		s.cfg.Email.SMTPServer, s.cfg.Email.SMTPPort,
		s.cfg.Email.Username, s.cfg.Email.Password,
		from, rcpt.Email, msg.Subject, msg.Body,
	)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", rcpt.Email, err)
	}
	return nil
}
