package db

import (
	"context"
	"fmt"

	"alerting-service/internal/models"
)

// InsertAttempt appends one notification attempt to the audit trail.
func (d *DB) InsertAttempt(ctx context.Context, attempt models.NotificationAttempt) error {
	query := `
	INSERT INTO notification_attempts (
		id, alert_id, channel, escalation_level, recipient_id, address,
		timestamp, success, error, retry, manual
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := d.Pool.Exec(ctx, query,
		attempt.ID, attempt.AlertID, string(attempt.Channel),
		attempt.EscalationLevel, attempt.RecipientID, attempt.Address,
		attempt.Timestamp, attempt.Success, attempt.Error, attempt.Retry,
		attempt.Manual,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification attempt: %w", err)
	}
	return nil
}

// CountAttempts returns how many attempts exist for one
// (alert, channel, recipient) chain.
func (d *DB) CountAttempts(ctx context.Context, alertID string, channel models.Channel, recipientID string) (int, error) {
	query := `
	SELECT COUNT(*) FROM notification_attempts
	WHERE alert_id = $1 AND channel = $2 AND recipient_id = $3`

	var count int
	if err := d.Pool.QueryRow(ctx, query, alertID, string(channel), recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// ListAttempts returns the attempt audit trail for an alert, oldest first.
func (d *DB) ListAttempts(ctx context.Context, alertID string) ([]models.NotificationAttempt, error) {
	query := `
	SELECT id, alert_id, channel, escalation_level, recipient_id, address,
	       timestamp, success, error, retry, manual
	FROM notification_attempts
	WHERE alert_id = $1
	ORDER BY timestamp`

	rows, err := d.Pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var list []models.NotificationAttempt
	for rows.Next() {
		var a models.NotificationAttempt
		err := rows.Scan(
			&a.ID, &a.AlertID, &a.Channel, &a.EscalationLevel, &a.RecipientID,
			&a.Address, &a.Timestamp, &a.Success, &a.Error, &a.Retry, &a.Manual,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		list = append(list, a)
	}
	return list, nil
}
