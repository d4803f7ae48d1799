// Package alerts owns the alert entity and its lifecycle state machine:
// ACTIVA -> EN_ESCALAMIENTO -> ESCALADA, with RESUELTA as the only terminal
// state. All transitions for one alert are serialized under a per-alert lock.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"alerting-service/internal/clock"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store"
)

// Publisher mirrors lifecycle transitions to live subscribers.
type Publisher interface {
	Publish(event models.AlertEvent)
}

// Notifier hands a dispatch off to the notification pipeline without
// blocking the state machine.
type Notifier interface {
	Dispatch(alertID string, level int)
}

// Store is the slice of persistence the manager needs.
type Store interface {
	store.AlertStore
	GetAlertConfig(ctx context.Context, sensorID int) (models.AlertConfig, error)
}

// Manager coordinates alert creation, escalation, and resolution.
type Manager struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	logger    *logging.Logger
	clock     clock.Clock
	metrics   *metrics.Metrics

	// defaultMaxLevel bounds escalation for sensors without an explicit
	// escalation ladder.
	defaultMaxLevel int

	alertLocks sync.Map // alert ID -> *sync.Mutex
	pairLocks  sync.Map // "sensor/metric" -> *sync.Mutex
}

// New constructs a lifecycle manager.
func New(st Store, publisher Publisher, notifier Notifier, logger *logging.Logger, clk clock.Clock, m *metrics.Metrics) *Manager {
	return &Manager{
		store:           st,
		publisher:       publisher,
		notifier:        notifier,
		logger:          logger,
		clock:           clk,
		metrics:         m,
		defaultMaxLevel: 1,
	}
}

// CreateOrUpdate records a breach. An existing non-terminal alert for the
// pair absorbs the breach in place; escalation level is never reset by a
// re-breach.
func (m *Manager) CreateOrUpdate(ctx context.Context, breach evaluator.Breach) (models.Alert, error) {
	pairLock := m.lockFor(&m.pairLocks, fmt.Sprintf("%d/%s", breach.SensorID, breach.Metric))
	pairLock.Lock()
	defer pairLock.Unlock()

	existing, err := m.store.GetActiveAlert(ctx, breach.SensorID, breach.Metric)
	switch {
	case err == nil:
		return m.absorbBreach(ctx, existing, breach)
	case errors.Is(err, models.ErrNotFound):
		return m.createAlert(ctx, breach)
	default:
		return models.Alert{}, fmt.Errorf("failed to look up active alert: %w", err)
	}
}

func (m *Manager) createAlert(ctx context.Context, breach evaluator.Breach) (models.Alert, error) {
	now := m.clock.Now()
	alert := models.Alert{
		ID:              uuid.New().String(),
		SensorID:        breach.SensorID,
		CompanyID:       breach.CompanyID,
		Metric:          breach.Metric,
		TriggeringValue: breach.Value,
		Unit:            breach.Unit,
		Severity:        breach.Severity,
		State:           models.StateActive,
		EscalationLevel: 0,
		Message:         breach.Message,
		CreatedAt:       now,
		LastEscalatedAt: now,
	}
	if err := m.store.InsertAlert(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	if m.metrics != nil {
		m.metrics.AlertsCreated.Inc()
	}
	m.logger.Infof("Alert %s created (sensor=%d metric=%s severity=%s value=%.2f)",
		alert.ID, alert.SensorID, alert.Metric, alert.Severity, alert.TriggeringValue)
	m.publish(models.EventAlertCreated, alert)
	m.notifier.Dispatch(alert.ID, 0)
	return alert, nil
}

func (m *Manager) absorbBreach(ctx context.Context, alert models.Alert, breach evaluator.Breach) (models.Alert, error) {
	lock := m.lockFor(&m.alertLocks, alert.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; an escalation may have advanced the alert
	// between the dedup lookup and here.
	alert, err := m.store.GetAlert(ctx, alert.ID)
	if err != nil {
		return models.Alert{}, err
	}
	if alert.State.Terminal() {
		// Resolved concurrently; treat the breach as a fresh one.
		return m.createAlert(ctx, breach)
	}

	alert.TriggeringValue = breach.Value
	alert.Unit = breach.Unit
	if breach.Severity.Rank() > alert.Severity.Rank() {
		alert.Severity = breach.Severity
		alert.Message = breach.Message
	}
	if err := m.store.UpdateAlert(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to update alert %s: %w", alert.ID, err)
	}
	m.logger.Debugf("Alert %s absorbed re-breach (value=%.2f severity=%s)", alert.ID, breach.Value, alert.Severity)
	return alert, nil
}

// Resolve closes an alert. Resolution is idempotent at the resource level: a
// second call returns ErrAlreadyResolved and changes nothing.
func (m *Manager) Resolve(ctx context.Context, alertID, comment string) (models.Alert, error) {
	lock := m.lockFor(&m.alertLocks, alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	if alert.State == models.StateResolved {
		return alert, fmt.Errorf("alert %s: %w", alertID, models.ErrAlreadyResolved)
	}

	now := m.clock.Now()
	alert.State = models.StateResolved
	alert.ResolvedAt = &now
	if comment != "" {
		alert.ResolutionComment = &comment
	}
	if err := m.store.UpdateAlert(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to resolve alert %s: %w", alertID, err)
	}
	if m.metrics != nil {
		m.metrics.AlertsResolved.Inc()
	}
	m.logger.Infof("Alert %s resolved", alertID)
	m.publish(models.EventAlertResolved, alert)
	return alert, nil
}

// Escalate advances the alert exactly one level and dispatches to the new
// level's recipients. Used by the manual escalation endpoint.
func (m *Manager) Escalate(ctx context.Context, alertID string) (models.Alert, error) {
	lock := m.lockFor(&m.alertLocks, alertID)
	lock.Lock()
	defer lock.Unlock()
	return m.escalateLocked(ctx, alertID)
}

// TryEscalate is the scheduler entry point: if the alert's lock is already
// held the escalation is skipped this tick and retried on the next one.
func (m *Manager) TryEscalate(ctx context.Context, alertID string) (models.Alert, bool, error) {
	lock := m.lockFor(&m.alertLocks, alertID)
	if !lock.TryLock() {
		return models.Alert{}, true, nil
	}
	defer lock.Unlock()
	alert, err := m.escalateLocked(ctx, alertID)
	return alert, false, err
}

func (m *Manager) escalateLocked(ctx context.Context, alertID string) (models.Alert, error) {
	alert, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	if alert.State.Terminal() {
		return alert, fmt.Errorf("alert %s: %w", alertID, models.ErrAlreadyTerminal)
	}

	maxLevel := m.defaultMaxLevel
	cfg, err := m.store.GetAlertConfig(ctx, alert.SensorID)
	if err == nil {
		maxLevel = cfg.MaxLevel()
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.Alert{}, fmt.Errorf("failed to load alert config: %w", err)
	}

	alert.EscalationLevel++
	if alert.EscalationLevel >= maxLevel {
		alert.State = models.StateEscalated
	} else {
		alert.State = models.StateEscalating
	}
	alert.LastEscalatedAt = m.clock.Now()

	if err := m.store.UpdateAlert(ctx, alert); err != nil {
		return models.Alert{}, fmt.Errorf("failed to escalate alert %s: %w", alertID, err)
	}
	if m.metrics != nil {
		m.metrics.AlertsEscalated.Inc()
	}
	m.logger.Infof("Alert %s escalated to level %d (state=%s)", alertID, alert.EscalationLevel, alert.State)
	m.publish(models.EventAlertEscalated, alert)
	m.notifier.Dispatch(alert.ID, alert.EscalationLevel)
	return alert, nil
}

func (m *Manager) publish(eventType models.AlertEventType, alert models.Alert) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(models.AlertEvent{
		Type:      eventType,
		Alert:     alert,
		Timestamp: m.clock.Now(),
	})
}

func (m *Manager) lockFor(locks *sync.Map, key string) *sync.Mutex {
	actual, _ := locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
