package providers

import (
	"context"
	"fmt"

	"alerting-service/internal/config"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/models"
	"alerting-service/pkg/sms"
)

// SMSSender delivers notifications through Twilio.
type SMSSender struct {
	cfg config.Config
}

// NewSMSSender returns an SMS sender, or nil when Twilio is not configured.
func NewSMSSender(cfg config.Config) *SMSSender {
	if cfg.SMS.AccountSID == "" || cfg.SMS.AuthToken == "" || cfg.SMS.FromNumber == "" {
		return nil
	}
	return &SMSSender{cfg: cfg}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMSSender) Send(_ context.Context, msg dispatch.Message, rcpt models.Recipient) error {
	if rcpt.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", rcpt.ID)
	}
	body := fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)
	return sms.Send(s.cfg.SMS.AccountSID, s.cfg.SMS.AuthToken, s.cfg.SMS.FromNumber, rcpt.Phone, body)
}
