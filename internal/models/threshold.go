package models

import (
	"fmt"
	"time"
)

// ThresholdConfig is the operator-edited bound configuration for one
// (sensor, metric) pair. The evaluation pipeline treats it as read-only.
type ThresholdConfig struct {
	SensorID        int        `json:"sensor_id"`
	CompanyID       int        `json:"company_id"`
	Metric          MetricKind `json:"metric"`
	Min             *float64   `json:"min,omitempty"`
	Max             *float64   `json:"max,omitempty"`
	SeverityDefault Severity   `json:"severity_default"`
	AlertMessage    string     `json:"alert_message"`
	CriticalMessage string     `json:"critical_message"`

	// VerificationIntervalMinutes is the window inside which a repeated
	// breach upgrades the classification to CRITICO.
	VerificationIntervalMinutes int `json:"verification_interval_minutes"`

	Enabled        bool      `json:"enabled"`
	NotifyEmail    bool      `json:"notify_email"`
	NotifySMS      bool      `json:"notify_sms"`
	NotifyTelegram bool      `json:"notify_telegram"`
	NotifyRealtime bool      `json:"notify_realtime"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate rejects configurations that could never classify a reading
// sensibly. Invalid configurations are never persisted.
func (t ThresholdConfig) Validate() error {
	if !t.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric kind %q", ErrConfigurationInvalid, t.Metric)
	}
	if t.SensorID <= 0 {
		return fmt.Errorf("%w: sensor_id must be positive", ErrConfigurationInvalid)
	}
	if t.Min == nil && t.Max == nil {
		return fmt.Errorf("%w: at least one bound is required", ErrConfigurationInvalid)
	}
	if t.Min != nil && t.Max != nil && *t.Min >= *t.Max {
		return fmt.Errorf("%w: min %.2f must be below max %.2f", ErrConfigurationInvalid, *t.Min, *t.Max)
	}
	profile := metricProfiles[t.Metric]
	if profile.FloorLimit != nil && t.Min != nil && *t.Min < *profile.FloorLimit {
		return fmt.Errorf("%w: min %.2f below %s floor %.2f", ErrConfigurationInvalid, *t.Min, t.Metric, *profile.FloorLimit)
	}
	if profile.CeilLimit != nil && t.Max != nil && *t.Max > *profile.CeilLimit {
		return fmt.Errorf("%w: max %.2f above %s ceiling %.2f", ErrConfigurationInvalid, *t.Max, t.Metric, *profile.CeilLimit)
	}
	if t.SeverityDefault != "" && !t.SeverityDefault.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrConfigurationInvalid, t.SeverityDefault)
	}
	if t.VerificationIntervalMinutes < 0 {
		return fmt.Errorf("%w: verification interval cannot be negative", ErrConfigurationInvalid)
	}
	return nil
}

// Span returns the width of the configured band, used to size the critical
// margin. With a single bound the span falls back to the bound's magnitude.
func (t ThresholdConfig) Span() float64 {
	switch {
	case t.Min != nil && t.Max != nil:
		return *t.Max - *t.Min
	case t.Max != nil:
		if *t.Max < 0 {
			return -*t.Max
		}
		return *t.Max
	case t.Min != nil:
		if *t.Min < 0 {
			return -*t.Min
		}
		return *t.Min
	default:
		return 0
	}
}

// Breach returns how far value falls outside [Min, Max]; zero when inside.
func (t ThresholdConfig) Breach(value float64) float64 {
	if t.Min != nil && value < *t.Min {
		return *t.Min - value
	}
	if t.Max != nil && value > *t.Max {
		return value - *t.Max
	}
	return 0
}
