package models

import "fmt"

// MetricKind identifies one physical quantity reported by a sensor.
type MetricKind string

const (
	MetricTemperature MetricKind = "TEMPERATURA"
	MetricHumidity    MetricKind = "HUMEDAD"
	MetricWeight      MetricKind = "PESO"
	MetricPressure    MetricKind = "PRESION"
)

// metricProfile describes the bounds each metric kind admits. Humidity is a
// percentage and must stay inside [0,100]; weight cannot go negative.
type metricProfile struct {
	DefaultUnit string
	FloorLimit  *float64
	CeilLimit   *float64
}

var (
	zero    = 0.0
	hundred = 100.0
)

var metricProfiles = map[MetricKind]metricProfile{
	MetricTemperature: {DefaultUnit: "°C"},
	MetricHumidity:    {DefaultUnit: "%", FloorLimit: &zero, CeilLimit: &hundred},
	MetricWeight:      {DefaultUnit: "kg", FloorLimit: &zero},
	MetricPressure:    {DefaultUnit: "hPa", FloorLimit: &zero},
}

// ParseMetricKind validates a raw metric string from an ingestion payload.
func ParseMetricKind(raw string) (MetricKind, error) {
	kind := MetricKind(raw)
	if _, ok := metricProfiles[kind]; !ok {
		return "", fmt.Errorf("%w: unknown metric kind %q", ErrInvalidReading, raw)
	}
	return kind, nil
}

// DefaultUnit returns the display unit for the metric kind.
func (m MetricKind) DefaultUnit() string {
	return metricProfiles[m].DefaultUnit
}

// Valid reports whether the metric kind is one of the known physical metrics.
func (m MetricKind) Valid() bool {
	_, ok := metricProfiles[m]
	return ok
}
