package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alerting-service/internal/models"
)

// GetAlertConfig loads the escalation ladder and attempt ceiling for a
// sensor. The ladder is stored as JSONB.
func (d *DB) GetAlertConfig(ctx context.Context, sensorID int) (models.AlertConfig, error) {
	query := `
	SELECT sensor_id, company_id, max_attempts, levels, schedule, updated_at
	FROM alert_configs
	WHERE sensor_id = $1`

	var cfg models.AlertConfig
	var levelsRaw []byte
	var scheduleRaw []byte
	err := d.Pool.QueryRow(ctx, query, sensorID).Scan(
		&cfg.SensorID, &cfg.CompanyID, &cfg.MaxAttempts, &levelsRaw, &scheduleRaw, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AlertConfig{}, fmt.Errorf("alert config for sensor %d: %w", sensorID, models.ErrNotFound)
		}
		return models.AlertConfig{}, fmt.Errorf("failed to get alert config: %w", err)
	}
	if err := json.Unmarshal(levelsRaw, &cfg.Levels); err != nil {
		return models.AlertConfig{}, fmt.Errorf("failed to decode escalation levels: %w", err)
	}
	if len(scheduleRaw) > 0 {
		if err := json.Unmarshal(scheduleRaw, &cfg.Schedule); err != nil {
			return models.AlertConfig{}, fmt.Errorf("failed to decode schedule window: %w", err)
		}
	}
	return cfg, nil
}

// UpsertAlertConfig validates and stores the full configuration. A non-nil
// schedule window also replaces the company's quiet-hours window.
func (d *DB) UpsertAlertConfig(ctx context.Context, cfg models.AlertConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	levelsRaw, err := json.Marshal(cfg.Levels)
	if err != nil {
		return fmt.Errorf("failed to encode escalation levels: %w", err)
	}
	var scheduleRaw []byte
	if cfg.Schedule != nil {
		scheduleRaw, err = json.Marshal(cfg.Schedule)
		if err != nil {
			return fmt.Errorf("failed to encode schedule window: %w", err)
		}
	}

	query := `
	INSERT INTO alert_configs (sensor_id, company_id, max_attempts, levels, schedule, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (sensor_id) DO UPDATE SET
		company_id = EXCLUDED.company_id,
		max_attempts = EXCLUDED.max_attempts,
		levels = EXCLUDED.levels,
		schedule = EXCLUDED.schedule,
		updated_at = EXCLUDED.updated_at`

	if _, err := d.Pool.Exec(ctx, query, cfg.SensorID, cfg.CompanyID, cfg.MaxAttempts, levelsRaw, scheduleRaw, cfg.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert alert config: %w", err)
	}

	if cfg.Schedule != nil && cfg.CompanyID != 0 {
		if err := d.UpsertScheduleWindow(ctx, cfg.CompanyID, *cfg.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// CreateRecipient inserts a notification recipient.
func (d *DB) CreateRecipient(ctx context.Context, r models.Recipient) error {
	query := `
	INSERT INTO recipients (id, company_id, name, email, phone, telegram_chat_id, priority, active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := d.Pool.Exec(ctx, query,
		r.ID, r.CompanyID, r.Name, r.Email, r.Phone, r.TelegramChatID,
		r.Priority, r.Active, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create recipient: %w", err)
	}
	return nil
}

// GetRecipients fetches recipients by id, ordered by priority.
func (d *DB) GetRecipients(ctx context.Context, ids []string) ([]models.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
	SELECT id, company_id, name, email, phone, telegram_chat_id, priority, active, created_at
	FROM recipients
	WHERE id = ANY($1)
	ORDER BY priority`

	rows, err := d.Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// ListRecipientsByCompany returns every recipient of one company.
func (d *DB) ListRecipientsByCompany(ctx context.Context, companyID int) ([]models.Recipient, error) {
	query := `
	SELECT id, company_id, name, email, phone, telegram_chat_id, priority, active, created_at
	FROM recipients
	WHERE company_id = $1
	ORDER BY priority`

	rows, err := d.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

// DeleteRecipient removes a recipient.
func (d *DB) DeleteRecipient(ctx context.Context, id string) error {
	result, err := d.Pool.Exec(ctx, `DELETE FROM recipients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipient %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("recipient %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetScheduleWindow returns the company's quiet-hours window or nil when no
// window is configured.
func (d *DB) GetScheduleWindow(ctx context.Context, companyID int) (*models.ScheduleWindow, error) {
	var raw []byte
	err := d.Pool.QueryRow(ctx, `SELECT window FROM schedule_windows WHERE company_id = $1`, companyID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule window: %w", err)
	}
	var w models.ScheduleWindow
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to decode schedule window: %w", err)
	}
	return &w, nil
}

// UpsertScheduleWindow validates and stores the company's window.
func (d *DB) UpsertScheduleWindow(ctx context.Context, companyID int, w models.ScheduleWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode schedule window: %w", err)
	}
	query := `
	INSERT INTO schedule_windows (company_id, window)
	VALUES ($1, $2)
	ON CONFLICT (company_id) DO UPDATE SET window = EXCLUDED.window`
	if _, err := d.Pool.Exec(ctx, query, companyID, raw); err != nil {
		return fmt.Errorf("failed to upsert schedule window: %w", err)
	}
	return nil
}

func scanRecipients(rows pgx.Rows) ([]models.Recipient, error) {
	var list []models.Recipient
	for rows.Next() {
		var r models.Recipient
		err := rows.Scan(
			&r.ID, &r.CompanyID, &r.Name, &r.Email, &r.Phone,
			&r.TelegramChatID, &r.Priority, &r.Active, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		list = append(list, r)
	}
	return list, nil
}
