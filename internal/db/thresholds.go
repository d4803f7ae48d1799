package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alerting-service/internal/models"
)

const thresholdColumns = `
	sensor_id, company_id, metric, min_value, max_value, severity_default,
	alert_message, critical_message, verification_interval_minutes, enabled,
	notify_email, notify_sms, notify_telegram, notify_realtime, updated_at`

// GetThreshold fetches the configuration for one (sensor, metric) pair.
func (d *DB) GetThreshold(ctx context.Context, sensorID int, metric models.MetricKind) (models.ThresholdConfig, error) {
	query := `SELECT` + thresholdColumns + `
	FROM thresholds
	WHERE sensor_id = $1 AND metric = $2`

	var cfg models.ThresholdConfig
	err := d.Pool.QueryRow(ctx, query, sensorID, string(metric)).Scan(
		&cfg.SensorID, &cfg.CompanyID, &cfg.Metric, &cfg.Min, &cfg.Max,
		&cfg.SeverityDefault, &cfg.AlertMessage, &cfg.CriticalMessage,
		&cfg.VerificationIntervalMinutes, &cfg.Enabled,
		&cfg.NotifyEmail, &cfg.NotifySMS, &cfg.NotifyTelegram, &cfg.NotifyRealtime,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ThresholdConfig{}, fmt.Errorf("threshold for sensor %d metric %s: %w", sensorID, metric, models.ErrNotFound)
		}
		return models.ThresholdConfig{}, fmt.Errorf("failed to get threshold: %w", err)
	}
	return cfg, nil
}

// ListThresholds returns all metric configurations for a sensor.
func (d *DB) ListThresholds(ctx context.Context, sensorID int) ([]models.ThresholdConfig, error) {
	query := `SELECT` + thresholdColumns + `
	FROM thresholds
	WHERE sensor_id = $1
	ORDER BY metric`

	rows, err := d.Pool.Query(ctx, query, sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var list []models.ThresholdConfig
	for rows.Next() {
		var cfg models.ThresholdConfig
		err := rows.Scan(
			&cfg.SensorID, &cfg.CompanyID, &cfg.Metric, &cfg.Min, &cfg.Max,
			&cfg.SeverityDefault, &cfg.AlertMessage, &cfg.CriticalMessage,
			&cfg.VerificationIntervalMinutes, &cfg.Enabled,
			&cfg.NotifyEmail, &cfg.NotifySMS, &cfg.NotifyTelegram, &cfg.NotifyRealtime,
			&cfg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		list = append(list, cfg)
	}
	return list, nil
}

// UpsertThreshold validates and stores a configuration, replacing any
// previous row for the same (sensor, metric) pair.
func (d *DB) UpsertThreshold(ctx context.Context, cfg models.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO thresholds (` + thresholdColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (sensor_id, metric) DO UPDATE SET
		company_id = EXCLUDED.company_id,
		min_value = EXCLUDED.min_value,
		max_value = EXCLUDED.max_value,
		severity_default = EXCLUDED.severity_default,
		alert_message = EXCLUDED.alert_message,
		critical_message = EXCLUDED.critical_message,
		verification_interval_minutes = EXCLUDED.verification_interval_minutes,
		enabled = EXCLUDED.enabled,
		notify_email = EXCLUDED.notify_email,
		notify_sms = EXCLUDED.notify_sms,
		notify_telegram = EXCLUDED.notify_telegram,
		notify_realtime = EXCLUDED.notify_realtime,
		updated_at = EXCLUDED.updated_at`

	_, err := d.Pool.Exec(ctx, query,
		cfg.SensorID, cfg.CompanyID, string(cfg.Metric), cfg.Min, cfg.Max,
		string(cfg.SeverityDefault), cfg.AlertMessage, cfg.CriticalMessage,
		cfg.VerificationIntervalMinutes, cfg.Enabled,
		cfg.NotifyEmail, cfg.NotifySMS, cfg.NotifyTelegram, cfg.NotifyRealtime,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert threshold: %w", err)
	}
	return nil
}

// DeleteThresholdsBySensor removes every threshold for a sensor, used when a
// sensor is deleted upstream.
func (d *DB) DeleteThresholdsBySensor(ctx context.Context, sensorID int) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM thresholds WHERE sensor_id = $1`, sensorID)
	if err != nil {
		return fmt.Errorf("failed to delete thresholds for sensor %d: %w", sensorID, err)
	}
	return nil
}
