// Package escalation runs the background loop that promotes unresolved
// alerts through their escalation ladder.
package escalation

import (
	"context"
	"errors"
	"sync"
	"time"

	"alerting-service/internal/clock"
	"alerting-service/internal/logging"
	"alerting-service/internal/models"
)

// Escalator advances one alert by one level, skipping alerts whose lock is
// already held. Implemented by alerts.Manager.
type Escalator interface {
	TryEscalate(ctx context.Context, alertID string) (models.Alert, bool, error)
}

// Store is the read surface the scan needs.
type Store interface {
	ListAlertsByStates(ctx context.Context, states ...models.AlertState) ([]models.Alert, error)
	GetAlertConfig(ctx context.Context, sensorID int) (models.AlertConfig, error)
}

// Scheduler periodically scans unresolved alerts and escalates the ones
// whose time at the current level has run out. Resolution is the only
// cancellation signal: a resolved alert simply stops matching the scan.
type Scheduler struct {
	store     Store
	escalator Escalator
	logger    *logging.Logger
	clock     clock.Clock

	tick           time.Duration
	defaultTimeout time.Duration
}

// New constructs a scheduler. defaultTimeout applies to sensors without an
// escalation ladder.
func New(store Store, escalator Escalator, logger *logging.Logger, clk clock.Clock, tick, defaultTimeout time.Duration) *Scheduler {
	return &Scheduler{
		store:          store,
		escalator:      escalator,
		logger:         logger,
		clock:          clk,
		tick:           tick,
		defaultTimeout: defaultTimeout,
	}
}

// Start launches the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		s.logger.Infof("Escalation scheduler started (tick=%s)", s.tick)
		for {
			select {
			case <-ctx.Done():
				s.logger.Infof("Escalation scheduler stopped")
				return
			case <-ticker.C:
				s.Scan(ctx)
			}
		}
	}()
}

// Scan runs one escalation pass. A failure on one alert never stops the
// scan for the others.
func (s *Scheduler) Scan(ctx context.Context) {
	alerts, err := s.store.ListAlertsByStates(ctx, models.StateActive, models.StateEscalating)
	if err != nil {
		s.logger.Errorf("Escalation scan failed to list alerts: %v", err)
		return
	}

	now := s.clock.Now()
	for _, alert := range alerts {
		timeout := s.levelTimeout(ctx, alert)
		if now.Sub(alert.LastEscalatedAt) < timeout {
			continue
		}

		_, skipped, err := s.escalator.TryEscalate(ctx, alert.ID)
		switch {
		case skipped:
			s.logger.Debugf("Alert %s busy, retrying next tick", alert.ID)
		case errors.Is(err, models.ErrAlreadyTerminal):
			// Resolved between the scan and the escalation attempt.
		case err != nil:
			s.logger.Errorf("Failed to escalate alert %s: %v", alert.ID, err)
		}
	}
}

func (s *Scheduler) levelTimeout(ctx context.Context, alert models.Alert) time.Duration {
	cfg, err := s.store.GetAlertConfig(ctx, alert.SensorID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Errorf("Failed to load alert config for sensor %d: %v", alert.SensorID, err)
		}
		return s.defaultTimeout
	}
	level, ok := cfg.LevelAt(alert.EscalationLevel)
	if !ok || level.TimeoutMinutes <= 0 {
		return s.defaultTimeout
	}
	return time.Duration(level.TimeoutMinutes) * time.Minute
}
