package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus instruments.
type Metrics struct {
	ReadingsProcessed *prometheus.CounterVec
	AlertsCreated     prometheus.Counter
	AlertsEscalated   prometheus.Counter
	AlertsResolved    prometheus.Counter
	NotificationsSent *prometheus.CounterVec
}

// New registers the instruments with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReadingsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_readings_processed_total",
			Help: "Sensor readings evaluated, by classification.",
		}, []string{"classification"}),
		AlertsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_created_total",
			Help: "Alerts created by the lifecycle manager.",
		}),
		AlertsEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_escalated_total",
			Help: "Escalation level advances.",
		}),
		AlertsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerting_alerts_resolved_total",
			Help: "Alerts resolved through the API.",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alerting_notifications_total",
			Help: "Notification attempts, by channel and outcome.",
		}, []string{"channel", "status"}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
