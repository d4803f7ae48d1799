package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"alerting-service/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the connection and streams alert lifecycle events for
// the requested sensor/company scope. A snapshot of the scope's active
// alerts is pushed first so a reconnecting client recovers missed events.
func (h *Handler) ServeWS(c *gin.Context) {
	sensorID, _ := strconv.Atoi(c.Query("sensor_id"))
	companyID, _ := strconv.Atoi(c.Query("company_id"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	sub := h.hub.Subscribe(sensorID, companyID)
	defer func() {
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	if err := h.sendSnapshot(c, conn, sensorID, companyID); err != nil {
		h.logger.Warnf("WebSocket snapshot failed: %v", err)
		return
	}

	// Reader goroutine: only to observe the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warnf("WebSocket write failed: %v", err)
				return
			}
		}
	}
}

func (h *Handler) sendSnapshot(c *gin.Context, conn *websocket.Conn, sensorID, companyID int) error {
	list, err := h.store.ListAlerts(c.Request.Context(), models.AlertFilter{SensorID: sensorID, CompanyID: companyID})
	if err != nil {
		return err
	}
	active := make([]models.Alert, 0, len(list))
	for _, alert := range list {
		if !alert.State.Terminal() {
			active = append(active, alert)
		}
	}
	return conn.WriteJSON(gin.H{"type": "snapshot", "alerts": active})
}
