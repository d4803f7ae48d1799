package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"alerting-service/internal/config"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/models"
	"alerting-service/pkg/telegram"
)

// TelegramSender delivers notifications via the Telegram Bot API. A global
// rate limiter keeps the bot under the API's per-second message cap.
type TelegramSender struct {
	cfg     config.Config
	limiter *rate.Limiter
}

// NewTelegramSender returns a telegram sender, or nil when no bot token is
// configured.
func NewTelegramSender(cfg config.Config) *TelegramSender {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	perSecond := cfg.Telegram.RatePerSecond
	if perSecond <= 0 {
		perSecond = 25
	}
	return &TelegramSender{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
	}
}

func (s *TelegramSender) Channel() models.Channel {
	return models.ChannelTelegram
}

func (s *TelegramSender) Send(ctx context.Context, msg dispatch.Message, rcpt models.Recipient) error {
	if rcpt.TelegramChatID == 0 {
		return fmt.Errorf("recipient %s has no telegram chat_id", rcpt.ID)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	text := fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	return telegram.Send(ctx, s.cfg.Telegram.BotToken, rcpt.TelegramChatID, text)
}
