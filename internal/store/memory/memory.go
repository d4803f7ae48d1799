// Package memory is the in-process store backend used by tests and by dev
// mode when no database DSN is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"alerting-service/internal/models"
)

type thresholdKey struct {
	sensorID int
	metric   models.MetricKind
}

// Store keeps every entity in maps guarded by one RWMutex. Alert rows are
// copied in and out so callers never share slices with the store.
type Store struct {
	mu         sync.RWMutex
	thresholds map[thresholdKey]models.ThresholdConfig
	alerts     map[string]models.Alert
	attempts   []models.NotificationAttempt
	configs    map[int]models.AlertConfig
	recipients map[string]models.Recipient
	schedules  map[int]models.ScheduleWindow
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		thresholds: make(map[thresholdKey]models.ThresholdConfig),
		alerts:     make(map[string]models.Alert),
		configs:    make(map[int]models.AlertConfig),
		recipients: make(map[string]models.Recipient),
		schedules:  make(map[int]models.ScheduleWindow),
	}
}

func (s *Store) GetThreshold(_ context.Context, sensorID int, metric models.MetricKind) (models.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.thresholds[thresholdKey{sensorID, metric}]
	if !ok {
		return models.ThresholdConfig{}, fmt.Errorf("threshold for sensor %d metric %s: %w", sensorID, metric, models.ErrNotFound)
	}
	return cfg, nil
}

func (s *Store) ListThresholds(_ context.Context, sensorID int) ([]models.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ThresholdConfig
	for key, cfg := range s.thresholds {
		if key.sensorID == sensorID {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

func (s *Store) UpsertThreshold(_ context.Context, cfg models.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[thresholdKey{cfg.SensorID, cfg.Metric}] = cfg
	return nil
}

func (s *Store) DeleteThresholdsBySensor(_ context.Context, sensorID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.thresholds {
		if key.sensorID == sensorID {
			delete(s.thresholds, key)
		}
	}
	return nil
}

func (s *Store) InsertAlert(_ context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (s *Store) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	return cloneAlert(alert), nil
}

func (s *Store) GetActiveAlert(_ context.Context, sensorID int, metric models.MetricKind) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, alert := range s.alerts {
		if alert.SensorID == sensorID && alert.Metric == metric && !alert.State.Terminal() {
			return cloneAlert(alert), nil
		}
	}
	return models.Alert{}, fmt.Errorf("active alert for sensor %d metric %s: %w", sensorID, metric, models.ErrNotFound)
}

func (s *Store) UpdateAlert(_ context.Context, alert models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return fmt.Errorf("alert %s: %w", alert.ID, models.ErrNotFound)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (s *Store) ListAlerts(_ context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, alert := range s.alerts {
		if !matches(alert, filter) {
			continue
		}
		out = append(out, cloneAlert(alert))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListAlertsByStates(_ context.Context, states ...models.AlertState) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[models.AlertState]bool, len(states))
	for _, st := range states {
		wanted[st] = true
	}
	var out []models.Alert
	for _, alert := range s.alerts {
		if wanted[alert.State] {
			out = append(out, cloneAlert(alert))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AlertStats(_ context.Context, companyID int) (models.AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.AlertStats{
		BySeverity: make(map[models.Severity]int),
		ByState:    make(map[models.AlertState]int),
	}
	for _, alert := range s.alerts {
		if companyID != 0 && alert.CompanyID != companyID {
			continue
		}
		stats.Total++
		stats.BySeverity[alert.Severity]++
		stats.ByState[alert.State]++
	}
	return stats, nil
}

func (s *Store) AlertHistory(_ context.Context, sensorID int, since time.Time) (map[string][]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]models.Alert)
	for _, alert := range s.alerts {
		if alert.SensorID != sensorID || alert.CreatedAt.Before(since) {
			continue
		}
		day := alert.CreatedAt.UTC().Format("2006-01-02")
		out[day] = append(out[day], cloneAlert(alert))
	}
	for day := range out {
		group := out[day]
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.After(group[j].CreatedAt) })
		out[day] = group
	}
	return out, nil
}

func (s *Store) MarkRecipientNotified(_ context.Context, alertID, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s: %w", alertID, models.ErrNotFound)
	}
	for _, existing := range alert.RecipientsNotified {
		if existing == recipientID {
			return nil
		}
	}
	alert.RecipientsNotified = append(alert.RecipientsNotified, recipientID)
	s.alerts[alertID] = alert
	return nil
}

func (s *Store) InsertAttempt(_ context.Context, attempt models.NotificationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *Store) CountAttempts(_ context.Context, alertID string, channel models.Channel, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if a.AlertID == alertID && a.Channel == channel && a.RecipientID == recipientID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListAttempts(_ context.Context, alertID string) ([]models.NotificationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.NotificationAttempt
	for _, a := range s.attempts {
		if a.AlertID == alertID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) GetAlertConfig(_ context.Context, sensorID int) (models.AlertConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[sensorID]
	if !ok {
		return models.AlertConfig{}, fmt.Errorf("alert config for sensor %d: %w", sensorID, models.ErrNotFound)
	}
	return cfg, nil
}

func (s *Store) UpsertAlertConfig(_ context.Context, cfg models.AlertConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.SensorID] = cfg
	if cfg.Schedule != nil && cfg.CompanyID != 0 {
		s.schedules[cfg.CompanyID] = *cfg.Schedule
	}
	return nil
}

func (s *Store) CreateRecipient(_ context.Context, r models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
	return nil
}

func (s *Store) GetRecipients(_ context.Context, ids []string) ([]models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Recipient
	for _, id := range ids {
		if r, ok := s.recipients[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *Store) ListRecipientsByCompany(_ context.Context, companyID int) ([]models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Recipient
	for _, r := range s.recipients {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *Store) DeleteRecipient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipients[id]; !ok {
		return fmt.Errorf("recipient %s: %w", id, models.ErrNotFound)
	}
	delete(s.recipients, id)
	return nil
}

func (s *Store) GetScheduleWindow(_ context.Context, companyID int) (*models.ScheduleWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.schedules[companyID]
	if !ok {
		return nil, nil
	}
	copied := w
	return &copied, nil
}

func (s *Store) UpsertScheduleWindow(_ context.Context, companyID int, w models.ScheduleWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[companyID] = w
	return nil
}

func matches(alert models.Alert, f models.AlertFilter) bool {
	if f.SensorID != 0 && alert.SensorID != f.SensorID {
		return false
	}
	if f.CompanyID != 0 && alert.CompanyID != f.CompanyID {
		return false
	}
	if f.Severity != "" && alert.Severity != f.Severity {
		return false
	}
	if f.State != "" && alert.State != f.State {
		return false
	}
	if f.Metric != "" && alert.Metric != f.Metric {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(alert.Message + " " + string(alert.Metric) + " " + alert.Unit)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func cloneAlert(a models.Alert) models.Alert {
	out := a
	if a.RecipientsNotified != nil {
		out.RecipientsNotified = append([]string(nil), a.RecipientsNotified...)
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	if a.ResolutionComment != nil {
		c := *a.ResolutionComment
		out.ResolutionComment = &c
	}
	return out
}
