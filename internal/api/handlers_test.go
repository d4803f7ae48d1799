package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alerting-service/internal/alerts"
	"alerting-service/internal/clock"
	"alerting-service/internal/config"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store/memory"
	"alerting-service/internal/ws"
)

type recordingSender struct {
	mu    sync.Mutex
	sends int
}

func (s *recordingSender) Channel() models.Channel { return models.ChannelEmail }

func (s *recordingSender) Send(context.Context, dispatch.Message, models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return nil
}

type testAPI struct {
	router *gin.Engine
	store  *memory.Store
	email  *recordingSender
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	logger := logging.NewNop()
	clk := clock.NewFake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	hub := ws.NewHub(logger, 16)
	email := &recordingSender{}
	m := metrics.NewNop()
	dispatcher := dispatch.New(st, []dispatch.Sender{email}, logger, clk, m, dispatch.Options{MaxAttempts: 3})
	t.Cleanup(dispatcher.Stop)
	manager := alerts.New(st, hub, dispatcher, logger, clk, m)
	ev := evaluator.New(st, manager, logger, clk, m, 20)

	var cfg config.Config
	cfg.API.BasePath = "/api/v1"
	h := NewHandler(st, manager, ev, dispatcher, hub, logger)
	return &testAPI{router: NewRouter(logger, cfg, h, nil), store: st, email: email}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seedThreshold(t *testing.T) {
	t.Helper()
	min, max := 15.0, 35.0
	require.NoError(t, a.store.UpsertThreshold(context.Background(), models.ThresholdConfig{
		SensorID: 25, CompanyID: 1, Metric: models.MetricTemperature,
		Min: &min, Max: &max, SeverityDefault: models.SeverityHigh,
		AlertMessage: "temperatura fuera de rango",
		Enabled:      true, NotifyEmail: true,
	}))
}

// openAlert ingests an out-of-bounds reading and returns the created alert.
func (a *testAPI) openAlert(t *testing.T) models.Alert {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/readings", gin.H{
		"sensor_id": 25, "metric": "TEMPERATURA", "value": 37.0,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Classification string       `json:"classification"`
		Alert          models.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Alert.ID)
	return resp.Alert
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestReading(t *testing.T) {
	a := newTestAPI(t)
	a.seedThreshold(t)

	w := a.do(t, http.MethodPost, "/api/v1/readings", gin.H{
		"sensor_id": 25, "metric": "TEMPERATURA", "value": 20.0,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NORMAL", resp["classification"])
	assert.NotContains(t, resp, "alert")

	alert := a.openAlert(t)
	assert.Equal(t, models.StateActive, alert.State)
	assert.Equal(t, models.SeverityHigh, alert.Severity)

	w = a.do(t, http.MethodPost, "/api/v1/readings", gin.H{
		"sensor_id": 25, "metric": "TEMPERATURA",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing value")

	w = a.do(t, http.MethodPost, "/api/v1/readings", gin.H{
		"sensor_id": 25, "metric": "VOLTAJE", "value": 1.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown metric")
}

func TestThresholdEndpoints(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/sensors/25/thresholds", gin.H{
		"company_id": 1, "metric": "TEMPERATURA", "min": 15.0, "max": 35.0,
		"severity_default": "ALTA", "enabled": true,
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/sensors/25/thresholds", gin.H{
		"company_id": 1, "metric": "TEMPERATURA", "min": 40.0, "max": 35.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "min above max")

	w = a.do(t, http.MethodPost, "/api/v1/sensors/abc/thresholds", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "bad sensor id")

	w = a.do(t, http.MethodGet, "/api/v1/sensors/25/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.ThresholdConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 25, list[0].SensorID)

	w = a.do(t, http.MethodDelete, "/api/v1/sensors/25/thresholds", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResolveAlertEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seedThreshold(t)
	alert := a.openAlert(t)

	w := a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", gin.H{"comment": "reparado"})
	require.Equal(t, http.StatusOK, w.Code)
	var resolved models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, models.StateResolved, resolved.State)
	require.NotNil(t, resolved.ResolutionComment)
	assert.Equal(t, "reparado", *resolved.ResolutionComment)

	w = a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "second resolve conflicts")

	w = a.do(t, http.MethodPost, "/api/v1/alerts/ghost/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEscalateAlertEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seedThreshold(t)
	alert := a.openAlert(t)

	w := a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/escalate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var escalated models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &escalated))
	assert.Equal(t, 1, escalated.EscalationLevel)

	a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resolve", nil)
	w = a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/escalate", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "terminal alerts cannot escalate")
}

func TestResendEndpoint(t *testing.T) {
	a := newTestAPI(t)
	a.seedThreshold(t)
	alert := a.openAlert(t)
	require.NoError(t, a.store.CreateRecipient(context.Background(), models.Recipient{
		ID: "r1", CompanyID: 1, Name: "Ana", Email: "ana@example.com", Active: true,
	}))

	w := a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resend", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "channel is required")

	w = a.do(t, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/resend", gin.H{"channel": "email"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/alerts/"+alert.ID+"/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var attempts []models.NotificationAttempt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &attempts))
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Manual)
}

func TestListAndStatsEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedThreshold(t)
	alert := a.openAlert(t)

	w := a.do(t, http.MethodGet, "/api/v1/alerts?severity=ALTA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, alert.ID, list[0].ID)

	w = a.do(t, http.MethodGet, "/api/v1/alerts?severity=CRITICA", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	w = a.do(t, http.MethodGet, "/api/v1/sensors/25/alerts/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = a.do(t, http.MethodGet, "/api/v1/alerts/stats?company_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.AlertStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestRecipientEndpoints(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/recipients", gin.H{
		"company_id": 1, "name": "Ana", "email": "ana@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Recipient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	w = a.do(t, http.MethodPost, "/api/v1/recipients", gin.H{"name": "sin empresa"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/recipients/company/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Recipient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = a.do(t, http.MethodDelete, "/api/v1/recipients/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodDelete, "/api/v1/recipients/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
