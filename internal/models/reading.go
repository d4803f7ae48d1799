package models

import (
	"fmt"
	"time"
)

// Reading is one sensor measurement entering the evaluation pipeline, either
// via POST /readings or the Kafka readings topic.
type Reading struct {
	SensorID  int        `json:"sensor_id"`
	CompanyID int        `json:"company_id"`
	Metric    MetricKind `json:"metric"`
	Value     *float64   `json:"value"`
	Unit      string     `json:"unit"`
	Timestamp time.Time  `json:"timestamp"`
}

// Validate rejects malformed readings before they reach the evaluator. A bad
// reading is dropped and logged; it never stops other sensors.
func (r Reading) Validate() error {
	if r.SensorID <= 0 {
		return fmt.Errorf("%w: missing sensor_id", ErrInvalidReading)
	}
	if !r.Metric.Valid() {
		return fmt.Errorf("%w: unknown metric kind %q", ErrInvalidReading, r.Metric)
	}
	if r.Value == nil {
		return fmt.Errorf("%w: missing value", ErrInvalidReading)
	}
	return nil
}
