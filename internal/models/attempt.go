package models

import "time"

// Channel names one notification transport.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
	ChannelRealtime Channel = "realtime"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelTelegram, ChannelRealtime:
		return true
	}
	return false
}

// NotificationAttempt records one delivery try over one channel to one
// recipient for one alert and escalation level. Attempts are append-only and
// never deleted; the dispatcher counts them to enforce the per-chain ceiling.
type NotificationAttempt struct {
	ID              string    `json:"id"`
	AlertID         string    `json:"alert_id"`
	Channel         Channel   `json:"channel"`
	EscalationLevel int       `json:"escalation_level"`
	RecipientID     string    `json:"recipient_id"`
	Address         string    `json:"address"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	Retry           int       `json:"retry"`

	// Manual marks attempts triggered by the resend endpoint rather than
	// the automatic dispatch path.
	Manual bool `json:"manual"`
}
