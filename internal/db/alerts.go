package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"alerting-service/internal/models"
)

const alertColumns = `
	id, sensor_id, company_id, metric, triggering_value, unit, severity,
	state, escalation_level, message, created_at, last_escalated_at,
	resolved_at, resolution_comment, recipients_notified`

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.SensorID, &a.CompanyID, &a.Metric, &a.TriggeringValue,
		&a.Unit, &a.Severity, &a.State, &a.EscalationLevel, &a.Message,
		&a.CreatedAt, &a.LastEscalatedAt, &a.ResolvedAt, &a.ResolutionComment,
		&a.RecipientsNotified,
	)
	return a, err
}

// InsertAlert persists a newly created alert.
func (d *DB) InsertAlert(ctx context.Context, alert models.Alert) error {
	query := `
	INSERT INTO alerts (` + alertColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	// A nil slice encodes as SQL NULL; store an empty array instead.
	notified := alert.RecipientsNotified
	if notified == nil {
		notified = []string{}
	}
	_, err := d.Pool.Exec(ctx, query,
		alert.ID, alert.SensorID, alert.CompanyID, string(alert.Metric),
		alert.TriggeringValue, alert.Unit, string(alert.Severity),
		string(alert.State), alert.EscalationLevel, alert.Message,
		alert.CreatedAt, alert.LastEscalatedAt, alert.ResolvedAt,
		alert.ResolutionComment, notified,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (d *DB) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE id = $1`
	alert, err := scanAlert(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Alert{}, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
		}
		return models.Alert{}, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return alert, nil
}

// GetActiveAlert returns the single non-terminal alert for a (sensor, metric)
// pair, if one exists.
func (d *DB) GetActiveAlert(ctx context.Context, sensorID int, metric models.MetricKind) (models.Alert, error) {
	query := `SELECT` + alertColumns + `
	FROM alerts
	WHERE sensor_id = $1 AND metric = $2 AND state <> 'RESUELTA'
	ORDER BY created_at DESC
	LIMIT 1`

	alert, err := scanAlert(d.Pool.QueryRow(ctx, query, sensorID, string(metric)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Alert{}, fmt.Errorf("active alert for sensor %d metric %s: %w", sensorID, metric, models.ErrNotFound)
		}
		return models.Alert{}, fmt.Errorf("failed to get active alert: %w", err)
	}
	return alert, nil
}

// UpdateAlert writes the full alert row. The guard on state keeps a resolved
// alert immutable even if a stale writer races the resolution.
func (d *DB) UpdateAlert(ctx context.Context, alert models.Alert) error {
	query := `
	UPDATE alerts SET
		triggering_value = $2, unit = $3, severity = $4, state = $5,
		escalation_level = $6, message = $7, last_escalated_at = $8,
		resolved_at = $9, resolution_comment = $10, recipients_notified = $11
	WHERE id = $1 AND (state <> 'RESUELTA' OR $5 = 'RESUELTA')`

	result, err := d.Pool.Exec(ctx, query,
		alert.ID, alert.TriggeringValue, alert.Unit, string(alert.Severity),
		string(alert.State), alert.EscalationLevel, alert.Message,
		alert.LastEscalatedAt, alert.ResolvedAt, alert.ResolutionComment,
		alert.RecipientsNotified,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alert.ID, models.ErrNotFound)
	}
	return nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (d *DB) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SensorID != 0 {
		query += " AND sensor_id = " + arg(filter.SensorID)
	}
	if filter.CompanyID != 0 {
		query += " AND company_id = " + arg(filter.CompanyID)
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(string(filter.Severity))
	}
	if filter.State != "" {
		query += " AND state = " + arg(string(filter.State))
	}
	if filter.Metric != "" {
		query += " AND metric = " + arg(string(filter.Metric))
	}
	if filter.Search != "" {
		query += " AND (message ILIKE " + arg("%"+filter.Search+"%") + " OR metric ILIKE " + arg("%"+filter.Search+"%") + ")"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}
	return list, nil
}

// ListAlertsByStates returns alerts in any of the given states, oldest first,
// for the escalation scheduler scan.
func (d *DB) ListAlertsByStates(ctx context.Context, states ...models.AlertState) ([]models.Alert, error) {
	raw := make([]string, len(states))
	for i, s := range states {
		raw[i] = string(s)
	}
	query := `SELECT` + alertColumns + `
	FROM alerts
	WHERE state = ANY($1)
	ORDER BY created_at`

	rows, err := d.Pool.Query(ctx, query, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts by state: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}
	return list, nil
}

// AlertStats aggregates counts by severity and state, optionally scoped to a
// company.
func (d *DB) AlertStats(ctx context.Context, companyID int) (models.AlertStats, error) {
	query := `SELECT severity, state, COUNT(*) FROM alerts`
	var args []interface{}
	if companyID != 0 {
		query += ` WHERE company_id = $1`
		args = append(args, companyID)
	}
	query += ` GROUP BY severity, state`

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return models.AlertStats{}, fmt.Errorf("failed to get alert stats: %w", err)
	}
	defer rows.Close()

	stats := models.AlertStats{
		BySeverity: make(map[models.Severity]int),
		ByState:    make(map[models.AlertState]int),
	}
	for rows.Next() {
		var severity, state string
		var count int
		if err := rows.Scan(&severity, &state, &count); err != nil {
			return models.AlertStats{}, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total += count
		stats.BySeverity[models.Severity(severity)] += count
		stats.ByState[models.AlertState(state)] += count
	}
	return stats, nil
}

// AlertHistory returns a sensor's alerts since a cutoff, grouped by calendar
// day (UTC).
func (d *DB) AlertHistory(ctx context.Context, sensorID int, since time.Time) (map[string][]models.Alert, error) {
	query := `SELECT` + alertColumns + `
	FROM alerts
	WHERE sensor_id = $1 AND created_at >= $2
	ORDER BY created_at DESC`

	rows, err := d.Pool.Query(ctx, query, sensorID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Alert)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		day := alert.CreatedAt.UTC().Format("2006-01-02")
		out[day] = append(out[day], alert)
	}
	return out, nil
}

// MarkRecipientNotified appends a recipient to the alert's ordered notified
// set, skipping duplicates.
func (d *DB) MarkRecipientNotified(ctx context.Context, alertID, recipientID string) error {
	// COALESCE on both sides: with a NULL column `$2 = ANY(...)` is NULL,
	// NOT NULL is NULL, and the UPDATE would match nothing.
	query := `
	UPDATE alerts
	SET recipients_notified = array_append(COALESCE(recipients_notified, '{}'), $2)
	WHERE id = $1 AND $2 <> ALL(COALESCE(recipients_notified, '{}'))`

	result, err := d.Pool.Exec(ctx, query, alertID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark recipient notified: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Zero rows means the recipient is already recorded, or the alert
		// row is gone; only the latter is an error.
		var exists bool
		if err := d.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, alertID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to verify alert %s: %w", alertID, err)
		}
		if !exists {
			return fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
		}
	}
	return nil
}
