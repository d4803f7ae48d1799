// Package store defines the persistence contracts the alerting core needs
// from a durable backend. internal/db implements them over Postgres;
// internal/store/memory implements them in process for tests and dev mode.
package store

import (
	"context"
	"time"

	"alerting-service/internal/models"
)

// ThresholdStore holds one configuration per (sensor, metric) pair.
type ThresholdStore interface {
	GetThreshold(ctx context.Context, sensorID int, metric models.MetricKind) (models.ThresholdConfig, error)
	ListThresholds(ctx context.Context, sensorID int) ([]models.ThresholdConfig, error)
	UpsertThreshold(ctx context.Context, cfg models.ThresholdConfig) error
	DeleteThresholdsBySensor(ctx context.Context, sensorID int) error
}

// AlertStore owns alert rows. UpdateAlert must be atomic per row; the
// lifecycle manager serializes writers per alert above this layer.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert models.Alert) error
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	GetActiveAlert(ctx context.Context, sensorID int, metric models.MetricKind) (models.Alert, error)
	UpdateAlert(ctx context.Context, alert models.Alert) error
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	ListAlertsByStates(ctx context.Context, states ...models.AlertState) ([]models.Alert, error)
	AlertStats(ctx context.Context, companyID int) (models.AlertStats, error)
	AlertHistory(ctx context.Context, sensorID int, since time.Time) (map[string][]models.Alert, error)
	MarkRecipientNotified(ctx context.Context, alertID, recipientID string) error
}

// AttemptStore records notification attempts, append-only.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, attempt models.NotificationAttempt) error
	CountAttempts(ctx context.Context, alertID string, channel models.Channel, recipientID string) (int, error)
	ListAttempts(ctx context.Context, alertID string) ([]models.NotificationAttempt, error)
}

// ConfigStore holds escalation ladders, recipients, and quiet-hours windows.
type ConfigStore interface {
	GetAlertConfig(ctx context.Context, sensorID int) (models.AlertConfig, error)
	UpsertAlertConfig(ctx context.Context, cfg models.AlertConfig) error
	CreateRecipient(ctx context.Context, r models.Recipient) error
	GetRecipients(ctx context.Context, ids []string) ([]models.Recipient, error)
	ListRecipientsByCompany(ctx context.Context, companyID int) ([]models.Recipient, error)
	DeleteRecipient(ctx context.Context, id string) error
	GetScheduleWindow(ctx context.Context, companyID int) (*models.ScheduleWindow, error)
	UpsertScheduleWindow(ctx context.Context, companyID int, w models.ScheduleWindow) error
}

// Store bundles every persistence contract the service uses.
type Store interface {
	ThresholdStore
	AlertStore
	AttemptStore
	ConfigStore
}
