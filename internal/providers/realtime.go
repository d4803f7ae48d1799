package providers

import (
	"context"
	"time"

	"alerting-service/internal/dispatch"
	"alerting-service/internal/models"
	"alerting-service/internal/ws"
)

// RealtimeSender pushes notifications to live websocket subscribers through
// the broadcast hub. Delivery is best effort; the attempt record reflects
// the publish, not client receipt.
type RealtimeSender struct {
	hub *ws.Hub
}

// NewRealtimeSender wraps the hub as a notification channel.
func NewRealtimeSender(hub *ws.Hub) *RealtimeSender {
	return &RealtimeSender{hub: hub}
}

func (s *RealtimeSender) Channel() models.Channel {
	return models.ChannelRealtime
}

func (s *RealtimeSender) Send(_ context.Context, msg dispatch.Message, _ models.Recipient) error {
	s.hub.Publish(models.AlertEvent{
		Type:      models.EventAlertNotification,
		Alert:     msg.Alert,
		Timestamp: time.Now().UTC(),
	})
	return nil
}
