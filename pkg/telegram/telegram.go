package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// Send delivers one Markdown message to a chat via the Telegram Bot API.
func Send(ctx context.Context, token string, chatID int64, text string) error {
	b, err := bot.New(token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
	}
	return nil
}
