package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alerting-service/internal/alerts"
	"alerting-service/internal/clock"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store/memory"
)

type noopNotifier struct{}

func (noopNotifier) Dispatch(string, int) {}

type noopPublisher struct{}

func (noopPublisher) Publish(models.AlertEvent) {}

type fixture struct {
	scheduler *Scheduler
	manager   *alerts.Manager
	store     *memory.Store
	clock     *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	manager := alerts.New(st, noopPublisher{}, noopNotifier{}, logging.NewNop(), clk, metrics.NewNop())
	scheduler := New(st, manager, logging.NewNop(), clk, time.Second, 15*time.Minute)
	return &fixture{scheduler: scheduler, manager: manager, store: st, clock: clk}
}

func (fx *fixture) openAlert(t *testing.T, sensorID int) models.Alert {
	t.Helper()
	alert, err := fx.manager.CreateOrUpdate(context.Background(), evaluator.Breach{
		SensorID: sensorID, CompanyID: 1, Metric: models.MetricTemperature,
		Value: 40, Unit: "°C", Severity: models.SeverityHigh,
		Message: "temperatura fuera de rango",
	})
	require.NoError(t, err)
	return alert
}

func (fx *fixture) seedLadder(t *testing.T, sensorID int, timeouts ...int) {
	t.Helper()
	levels := make([]models.EscalationLevel, len(timeouts))
	for i, timeout := range timeouts {
		levels[i] = models.EscalationLevel{Level: i, TimeoutMinutes: timeout}
	}
	require.NoError(t, fx.store.UpsertAlertConfig(context.Background(), models.AlertConfig{
		SensorID: sensorID, CompanyID: 1, Levels: levels,
	}))
}

func (fx *fixture) get(t *testing.T, id string) models.Alert {
	t.Helper()
	alert, err := fx.store.GetAlert(context.Background(), id)
	require.NoError(t, err)
	return alert
}

func TestScanEscalatesAfterLevelTimeout(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedLadder(t, 25, 15, 30, 60)
	alert := fx.openAlert(t, 25)

	fx.clock.Advance(14 * time.Minute)
	fx.scheduler.Scan(ctx)
	assert.Equal(t, 0, fx.get(t, alert.ID).EscalationLevel, "timeout not yet reached")

	fx.clock.Advance(time.Minute)
	fx.scheduler.Scan(ctx)
	got := fx.get(t, alert.ID)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Equal(t, models.StateEscalating, got.State)
	assert.Equal(t, fx.clock.Now(), got.LastEscalatedAt, "timer restarts at the new level")

	// Level 1 waits its own 30 minutes, not the level 0 timeout.
	fx.clock.Advance(15 * time.Minute)
	fx.scheduler.Scan(ctx)
	assert.Equal(t, 1, fx.get(t, alert.ID).EscalationLevel)

	fx.clock.Advance(15 * time.Minute)
	fx.scheduler.Scan(ctx)
	got = fx.get(t, alert.ID)
	assert.Equal(t, 2, got.EscalationLevel)
	assert.Equal(t, models.StateEscalated, got.State, "top of the ladder")
}

func TestScanLeavesEscalatedAlertsAlone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedLadder(t, 25, 15, 30)
	alert := fx.openAlert(t, 25)

	fx.clock.Advance(15 * time.Minute)
	fx.scheduler.Scan(ctx)
	require.Equal(t, models.StateEscalated, fx.get(t, alert.ID).State)

	// ESCALADA is out of the scan. Hours of ticks change nothing.
	fx.clock.Advance(10 * time.Hour)
	fx.scheduler.Scan(ctx)
	got := fx.get(t, alert.ID)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Equal(t, models.StateEscalated, got.State)
}

func TestScanSkipsResolvedAlerts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedLadder(t, 25, 15, 30, 60)
	alert := fx.openAlert(t, 25)

	_, err := fx.manager.Resolve(ctx, alert.ID, "reparado")
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)
	fx.scheduler.Scan(ctx)
	got := fx.get(t, alert.ID)
	assert.Equal(t, models.StateResolved, got.State)
	assert.Equal(t, 0, got.EscalationLevel, "resolution cancels pending escalation")
}

func TestScanUsesDefaultTimeoutWithoutLadder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alert := fx.openAlert(t, 25)

	fx.clock.Advance(14 * time.Minute)
	fx.scheduler.Scan(ctx)
	assert.Equal(t, 0, fx.get(t, alert.ID).EscalationLevel)

	fx.clock.Advance(time.Minute)
	fx.scheduler.Scan(ctx)
	got := fx.get(t, alert.ID)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Equal(t, models.StateEscalated, got.State)
}

func TestScanHandlesEachAlertIndependently(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seedLadder(t, 25, 15, 30, 60)
	fx.seedLadder(t, 26, 60, 90)
	fast := fx.openAlert(t, 25)
	slow := fx.openAlert(t, 26)

	fx.clock.Advance(20 * time.Minute)
	fx.scheduler.Scan(ctx)

	assert.Equal(t, 1, fx.get(t, fast.ID).EscalationLevel)
	assert.Equal(t, 0, fx.get(t, slow.ID).EscalationLevel, "each sensor keeps its own timeouts")
}

func TestStartStopsOnContextCancel(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	fx.scheduler.Start(ctx, &wg)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
