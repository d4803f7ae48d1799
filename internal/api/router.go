package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alerting-service/internal/config"
	"alerting-service/internal/logging"
)

// NewRouter wires the HTTP surface: health, metrics, the websocket gateway,
// and the versioned alerting API.
func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	r.GET("/ws/alerts", h.ServeWS)

	api := r.Group(cfg.API.BasePath)
	{
		// Readings ingestion
		api.POST("/readings", h.IngestReading)

		// Thresholds
		api.GET("/sensors/:id/thresholds", h.GetThresholds)
		api.POST("/sensors/:id/thresholds", h.UpsertThreshold)
		api.DELETE("/sensors/:id/thresholds", h.DeleteThresholds)

		// Alert configuration
		api.GET("/sensors/:id/alert-config", h.GetAlertConfig)
		api.POST("/sensors/:id/alert-config", h.UpsertAlertConfig)

		// Per-sensor alert queries
		api.GET("/sensors/:id/alerts", h.GetSensorAlerts)
		api.GET("/sensors/:id/alerts/active", h.GetSensorActiveAlerts)
		api.GET("/sensors/:id/alerts/history", h.GetSensorAlertHistory)

		// Alert queries and lifecycle operations
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/stats", h.GetAlertStats)
		api.POST("/alerts/test-notification", h.TestNotification)
		api.POST("/alerts/:id/resolve", h.ResolveAlert)
		api.POST("/alerts/:id/escalate", h.EscalateAlert)
		api.POST("/alerts/:id/resend", h.ResendNotification)
		api.GET("/alerts/:id/notifications", h.GetAlertNotifications)

		// Recipients
		api.POST("/recipients", h.CreateRecipient)
		api.GET("/recipients/company/:company_id", h.GetRecipientsByCompany)
		api.DELETE("/recipients/:id", h.DeleteRecipient)
	}
	return r
}
