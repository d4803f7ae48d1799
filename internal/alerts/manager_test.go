package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alerting-service/internal/clock"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (p *fakePublisher) Publish(event models.AlertEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []models.AlertEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.AlertEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type dispatchCall struct {
	alertID string
	level   int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (n *fakeNotifier) Dispatch(alertID string, level int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, dispatchCall{alertID: alertID, level: level})
}

func (n *fakeNotifier) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func highBreach() evaluator.Breach {
	return evaluator.Breach{
		SensorID:  25,
		CompanyID: 1,
		Metric:    models.MetricTemperature,
		Value:     40,
		Unit:      "°C",
		Severity:  models.SeverityHigh,
		Message:   "temperatura fuera de rango",
	}
}

func newManager(t *testing.T) (*Manager, *memory.Store, *fakePublisher, *fakeNotifier, *clock.Fake) {
	t.Helper()
	st := memory.New()
	pub := &fakePublisher{}
	not := &fakeNotifier{}
	clk := clock.NewFake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	m := New(st, pub, not, logging.NewNop(), clk, metrics.NewNop())
	return m, st, pub, not, clk
}

func seedLadder(t *testing.T, st *memory.Store, levels int) {
	t.Helper()
	ladder := make([]models.EscalationLevel, levels)
	for i := range ladder {
		ladder[i] = models.EscalationLevel{Level: i, TimeoutMinutes: 15}
	}
	require.NoError(t, st.UpsertAlertConfig(context.Background(), models.AlertConfig{
		SensorID: 25, CompanyID: 1, Levels: ladder,
	}))
}

func TestCreateOrUpdateOpensAlert(t *testing.T) {
	m, st, pub, not, clk := newManager(t)

	alert, err := m.CreateOrUpdate(context.Background(), highBreach())
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.StateActive, alert.State)
	assert.Equal(t, 0, alert.EscalationLevel)
	assert.Equal(t, clk.Now(), alert.CreatedAt)
	assert.Equal(t, clk.Now(), alert.LastEscalatedAt)

	stored, err := st.GetAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert, stored)

	assert.Equal(t, []models.AlertEventType{models.EventAlertCreated}, pub.types())
	require.Equal(t, 1, not.len())
	assert.Equal(t, dispatchCall{alertID: alert.ID, level: 0}, not.calls[0])
}

func TestCreateOrUpdateDeduplicates(t *testing.T) {
	m, _, pub, not, clk := newManager(t)
	ctx := context.Background()

	first, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	clk.Advance(time.Minute)
	rebreach := highBreach()
	rebreach.Value = 42
	second, err := m.CreateOrUpdate(ctx, rebreach)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same pair reuses the open alert")
	assert.Equal(t, 42.0, second.TriggeringValue)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	assert.Len(t, pub.types(), 1, "absorbing a re-breach publishes nothing")
	assert.Equal(t, 1, not.len(), "and dispatches nothing")
}

func TestCreateOrUpdateRaisesSeverityOnly(t *testing.T) {
	m, _, _, _, _ := newManager(t)
	ctx := context.Background()

	first, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	critical := highBreach()
	critical.Severity = models.SeverityCritical
	critical.Message = "temperatura critica"
	critical.Critical = true
	upgraded, err := m.CreateOrUpdate(ctx, critical)
	require.NoError(t, err)
	assert.Equal(t, first.ID, upgraded.ID)
	assert.Equal(t, models.SeverityCritical, upgraded.Severity)
	assert.Equal(t, "temperatura critica", upgraded.Message)

	// A later milder breach never downgrades.
	mild := highBreach()
	mild.Severity = models.SeverityLow
	mild.Message = "leve"
	after, err := m.CreateOrUpdate(ctx, mild)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, after.Severity)
	assert.Equal(t, "temperatura critica", after.Message)
}

func TestCreateOrUpdateAfterResolutionOpensFresh(t *testing.T) {
	m, _, _, _, _ := newManager(t)
	ctx := context.Background()

	first, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)
	_, err = m.Resolve(ctx, first.ID, "reparado")
	require.NoError(t, err)

	second, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "resolved alerts never absorb new breaches")
	assert.Equal(t, models.StateActive, second.State)
}

func TestResolve(t *testing.T) {
	m, _, pub, _, clk := newManager(t)
	ctx := context.Background()

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	resolved, err := m.Resolve(ctx, alert.ID, "sensor recalibrado")
	require.NoError(t, err)
	assert.Equal(t, models.StateResolved, resolved.State)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, clk.Now(), *resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolutionComment)
	assert.Equal(t, "sensor recalibrado", *resolved.ResolutionComment)

	again, err := m.Resolve(ctx, alert.ID, "otro comentario")
	assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	assert.Equal(t, "sensor recalibrado", *again.ResolutionComment, "second resolve changes nothing")

	assert.Equal(t, []models.AlertEventType{models.EventAlertCreated, models.EventAlertResolved}, pub.types())

	_, err = m.Resolve(ctx, "ghost", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEscalateWalksTheLadder(t *testing.T) {
	m, st, pub, not, clk := newManager(t)
	ctx := context.Background()
	seedLadder(t, st, 3)

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	clk.Advance(15 * time.Minute)
	step1, err := m.Escalate(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, step1.EscalationLevel)
	assert.Equal(t, models.StateEscalating, step1.State)
	assert.Equal(t, clk.Now(), step1.LastEscalatedAt)

	clk.Advance(15 * time.Minute)
	step2, err := m.Escalate(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, step2.EscalationLevel)
	assert.Equal(t, models.StateEscalated, step2.State, "top of the ladder")

	assert.Equal(t, []models.AlertEventType{
		models.EventAlertCreated,
		models.EventAlertEscalated,
		models.EventAlertEscalated,
	}, pub.types())
	require.Equal(t, 3, not.len())
	assert.Equal(t, dispatchCall{alertID: alert.ID, level: 1}, not.calls[1])
	assert.Equal(t, dispatchCall{alertID: alert.ID, level: 2}, not.calls[2])
}

func TestEscalateWithoutLadderUsesDefault(t *testing.T) {
	m, _, _, _, _ := newManager(t)
	ctx := context.Background()

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	escalated, err := m.Escalate(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, escalated.EscalationLevel)
	assert.Equal(t, models.StateEscalated, escalated.State, "default ladder tops out at level 1")
}

func TestEscalateTerminalAlert(t *testing.T) {
	m, _, _, not, _ := newManager(t)
	ctx := context.Background()

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)
	_, err = m.Resolve(ctx, alert.ID, "")
	require.NoError(t, err)

	_, err = m.Escalate(ctx, alert.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
	assert.Equal(t, 1, not.len(), "no dispatch for a terminal alert")
}

func TestEscalationDoesNotResetOnRebreach(t *testing.T) {
	m, st, _, _, _ := newManager(t)
	ctx := context.Background()
	seedLadder(t, st, 3)

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)
	_, err = m.Escalate(ctx, alert.ID)
	require.NoError(t, err)

	after, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)
	assert.Equal(t, 1, after.EscalationLevel, "re-breach keeps the escalation level")
	assert.Equal(t, models.StateEscalating, after.State)
}

func TestTryEscalateSkipsWhenLocked(t *testing.T) {
	m, _, _, _, _ := newManager(t)
	ctx := context.Background()

	alert, err := m.CreateOrUpdate(ctx, highBreach())
	require.NoError(t, err)

	lock := m.lockFor(&m.alertLocks, alert.ID)
	lock.Lock()
	_, skipped, err := m.TryEscalate(ctx, alert.ID)
	lock.Unlock()
	require.NoError(t, err)
	assert.True(t, skipped, "held lock defers to the next tick")

	escalated, skipped, err := m.TryEscalate(ctx, alert.ID)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 1, escalated.EscalationLevel)
}

func TestConcurrentBreachesCreateOneAlert(t *testing.T) {
	m, st, _, _, _ := newManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateOrUpdate(ctx, highBreach())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	open, err := st.ListAlertsByStates(ctx, models.StateActive)
	require.NoError(t, err)
	assert.Len(t, open, 1, "one open alert per (sensor, metric) pair")
}
