package models

import (
	"time"
)

// Severity is the qualitative urgency rank of an alert.
type Severity string

const (
	SeverityLow      Severity = "BAJA"
	SeverityMedium   Severity = "MEDIA"
	SeverityHigh     Severity = "ALTA"
	SeverityCritical Severity = "CRITICA"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of the severity, higher is more urgent.
// Unknown severities rank below BAJA.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	StateActive     AlertState = "ACTIVA"
	StateEscalating AlertState = "EN_ESCALAMIENTO"
	StateEscalated  AlertState = "ESCALADA"
	StateResolved   AlertState = "RESUELTA"
)

// Terminal reports whether the state admits no further transitions.
func (s AlertState) Terminal() bool {
	return s == StateResolved
}

// Alert is one active or historical threshold breach for a (sensor, metric)
// pair. At most one non-RESUELTA alert exists per pair; a re-breach updates
// the existing row instead of inserting a new one.
type Alert struct {
	ID                string     `json:"id"`
	SensorID          int        `json:"sensor_id"`
	CompanyID         int        `json:"company_id"`
	Metric            MetricKind `json:"metric"`
	TriggeringValue   float64    `json:"triggering_value"`
	Unit              string     `json:"unit"`
	Severity          Severity   `json:"severity"`
	State             AlertState `json:"state"`
	EscalationLevel   int        `json:"escalation_level"`
	Message           string     `json:"message"`
	CreatedAt         time.Time  `json:"created_at"`
	LastEscalatedAt   time.Time  `json:"last_escalated_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolutionComment *string    `json:"resolution_comment,omitempty"`

	// RecipientsNotified is the ordered set of recipient IDs that received
	// at least one successful delivery for this alert.
	RecipientsNotified []string `json:"recipients_notified,omitempty"`
}

// AlertFilter narrows alert list queries. Zero values mean "no filter".
type AlertFilter struct {
	SensorID  int
	CompanyID int
	Severity  Severity
	State     AlertState
	Metric    MetricKind
	Search    string
	Limit     int
	Offset    int
}

// AlertStats aggregates alert counts for the statistics endpoint.
type AlertStats struct {
	Total      int                `json:"total"`
	BySeverity map[Severity]int   `json:"by_severity"`
	ByState    map[AlertState]int `json:"by_state"`
}

// AlertEventType names one lifecycle transition pushed to live subscribers.
type AlertEventType string

const (
	EventAlertCreated      AlertEventType = "alert-created"
	EventAlertEscalated    AlertEventType = "alert-escalated"
	EventAlertResolved     AlertEventType = "alert-resolved"
	EventAlertNotification AlertEventType = "alert-notification"
)

// AlertEvent is one broadcast payload for the realtime gateway. Delivery is
// best effort; clients recover missed events through the query API.
type AlertEvent struct {
	Type      AlertEventType `json:"type"`
	Alert     Alert          `json:"alert"`
	Timestamp time.Time      `json:"timestamp"`
}
