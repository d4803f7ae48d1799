// Package evaluator classifies incoming sensor readings against their
// threshold configuration and hands breaches to the alert lifecycle manager.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alerting-service/internal/clock"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store"
)

// Classification is the outcome of evaluating one reading.
type Classification string

const (
	ClassNormal   Classification = "NORMAL"
	ClassAlert    Classification = "ALERTA"
	ClassCritical Classification = "CRITICO"
)

// Breach carries everything the lifecycle manager needs about one
// out-of-bounds reading.
type Breach struct {
	SensorID  int
	CompanyID int
	Metric    models.MetricKind
	Value     float64
	Unit      string
	Severity  models.Severity
	Message   string
	Critical  bool
}

// AlertSink receives classified breaches; implemented by alerts.Manager.
type AlertSink interface {
	CreateOrUpdate(ctx context.Context, breach Breach) (models.Alert, error)
}

type pairKey struct {
	sensorID int
	metric   models.MetricKind
}

// Evaluator resolves thresholds and classifies readings. It keeps the last
// breach time per (sensor, metric) so a repeat breach inside the verification
// interval upgrades to CRITICO.
type Evaluator struct {
	thresholds store.ThresholdStore
	sink       AlertSink
	logger     *logging.Logger
	clock      clock.Clock
	metrics    *metrics.Metrics

	// marginPct is the share of the threshold span (percent) a value must
	// overshoot a bound by to classify CRITICO on a first breach.
	marginPct float64

	mu         sync.Mutex
	lastBreach map[pairKey]time.Time
}

// New constructs an evaluator.
func New(thresholds store.ThresholdStore, sink AlertSink, logger *logging.Logger, clk clock.Clock, m *metrics.Metrics, marginPct float64) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		sink:       sink,
		logger:     logger,
		clock:      clk,
		metrics:    m,
		marginPct:  marginPct,
		lastBreach: make(map[pairKey]time.Time),
	}
}

// Process evaluates one reading. A NORMAL classification returns a nil
// alert; it never auto-resolves an open alert for the pair, resolution is an
// explicit operator action.
func (e *Evaluator) Process(ctx context.Context, reading models.Reading) (Classification, *models.Alert, error) {
	if err := reading.Validate(); err != nil {
		return ClassNormal, nil, err
	}

	cfg, err := e.thresholds.GetThreshold(ctx, reading.SensorID, reading.Metric)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			e.count(ClassNormal)
			return ClassNormal, nil, nil
		}
		return ClassNormal, nil, fmt.Errorf("failed to resolve threshold: %w", err)
	}
	if !cfg.Enabled {
		e.count(ClassNormal)
		return ClassNormal, nil, nil
	}

	value := *reading.Value
	breach := cfg.Breach(value)
	key := pairKey{reading.SensorID, reading.Metric}

	if breach == 0 {
		e.mu.Lock()
		delete(e.lastBreach, key)
		e.mu.Unlock()
		e.count(ClassNormal)
		return ClassNormal, nil, nil
	}

	class := e.classify(cfg, breach, key)
	e.count(class)

	severity := cfg.SeverityDefault
	if severity == "" {
		severity = models.SeverityMedium
	}
	message := cfg.AlertMessage
	if class == ClassCritical {
		severity = models.SeverityCritical
		if cfg.CriticalMessage != "" {
			message = cfg.CriticalMessage
		}
	}
	if message == "" {
		message = fmt.Sprintf("%s out of bounds: %.2f %s", reading.Metric, value, e.unit(reading, cfg))
	}

	alert, err := e.sink.CreateOrUpdate(ctx, Breach{
		SensorID:  reading.SensorID,
		CompanyID: cfg.CompanyID,
		Metric:    reading.Metric,
		Value:     value,
		Unit:      e.unit(reading, cfg),
		Severity:  severity,
		Message:   message,
		Critical:  class == ClassCritical,
	})
	if err != nil {
		return class, nil, fmt.Errorf("failed to record breach for sensor %d: %w", reading.SensorID, err)
	}
	return class, &alert, nil
}

// classify upgrades a breach to CRITICO when it overshoots the critical
// margin or repeats within the verification interval.
func (e *Evaluator) classify(cfg models.ThresholdConfig, breach float64, key pairKey) Classification {
	now := e.clock.Now()

	e.mu.Lock()
	last, seen := e.lastBreach[key]
	e.lastBreach[key] = now
	e.mu.Unlock()

	margin := cfg.Span() * e.marginPct / 100
	if margin > 0 && breach >= margin {
		return ClassCritical
	}
	interval := time.Duration(cfg.VerificationIntervalMinutes) * time.Minute
	if seen && interval > 0 && now.Sub(last) <= interval {
		return ClassCritical
	}
	return ClassAlert
}

func (e *Evaluator) unit(reading models.Reading, cfg models.ThresholdConfig) string {
	if reading.Unit != "" {
		return reading.Unit
	}
	return cfg.Metric.DefaultUnit()
}

func (e *Evaluator) count(class Classification) {
	if e.metrics != nil {
		e.metrics.ReadingsProcessed.WithLabelValues(string(class)).Inc()
	}
}
