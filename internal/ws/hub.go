// Package ws is the realtime broadcast gateway. It fans alert lifecycle
// events out to live subscribers keyed by sensor and company. Delivery is
// best effort, at most once; clients recover missed events via the query API.
package ws

import (
	"sync"

	"alerting-service/internal/logging"
	"alerting-service/internal/models"
)

// Subscriber is one live observer. SensorID or CompanyID of zero means
// "match any". Events arrive on the Events channel; a full channel drops the
// event rather than blocking the publisher.
type Subscriber struct {
	SensorID  int
	CompanyID int
	events    chan models.AlertEvent
}

// Events returns the receive side of the subscriber's event stream.
func (s *Subscriber) Events() <-chan models.AlertEvent {
	return s.events
}

// Hub is the subscription registry with explicit subscribe/unsubscribe
// lifecycle.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	logger      *logging.Logger
	bufferSize  int
}

// NewHub returns an empty hub. bufferSize is the per-subscriber event queue
// depth before events are dropped.
func NewHub(logger *logging.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		logger:      logger,
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new observer for the given scope.
func (h *Hub) Subscribe(sensorID, companyID int) *Subscriber {
	sub := &Subscriber{
		SensorID:  sensorID,
		CompanyID: companyID,
		events:    make(chan models.AlertEvent, h.bufferSize),
	}
	h.mu.Lock()
	h.subscribers[sub] = true
	count := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debugf("Subscriber added (sensor=%d company=%d, total=%d)", sensorID, companyID, count)
	return sub
}

// Unsubscribe removes the observer and closes its event channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.events)
	}
	count := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debugf("Subscriber removed (remaining=%d)", count)
}

// Publish fans an event out to every matching subscriber without blocking.
func (h *Hub) Publish(event models.AlertEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if sub.SensorID != 0 && sub.SensorID != event.Alert.SensorID {
			continue
		}
		if sub.CompanyID != 0 && sub.CompanyID != event.Alert.CompanyID {
			continue
		}
		select {
		case sub.events <- event:
		default:
			h.logger.Warnf("Dropping %s event for slow subscriber (sensor=%d)", event.Type, event.Alert.SensorID)
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
