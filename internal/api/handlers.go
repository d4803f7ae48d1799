package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"alerting-service/internal/alerts"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/models"
	"alerting-service/internal/store"
	"alerting-service/internal/ws"
)

type Handler struct {
	store      store.Store
	manager    *alerts.Manager
	evaluator  *evaluator.Evaluator
	dispatcher *dispatch.Dispatcher
	hub        *ws.Hub
	logger     *logging.Logger
}

func NewHandler(st store.Store, manager *alerts.Manager, ev *evaluator.Evaluator, dispatcher *dispatch.Dispatcher, hub *ws.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		store:      st,
		manager:    manager,
		evaluator:  ev,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// statusFor maps the error taxonomy to HTTP status codes. Only API errors
// surface to callers; evaluator and dispatcher errors stay contained.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyResolved), errors.Is(err, models.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidReading), errors.Is(err, models.ErrConfigurationInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func sensorParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sensor id"})
		return 0, false
	}
	return id, true
}

// IngestReading is the REST entry point into the evaluator.
func (h *Handler) IngestReading(c *gin.Context) {
	var reading models.Reading
	if err := c.ShouldBindJSON(&reading); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	class, alert, err := h.evaluator.Process(c.Request.Context(), reading)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"classification": class}
	if alert != nil {
		resp["alert"] = alert
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) GetThresholds(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	list, err := h.store.ListThresholds(c.Request.Context(), sensorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) UpsertThreshold(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	var cfg models.ThresholdConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	cfg.SensorID = sensorID
	cfg.UpdatedAt = time.Now().UTC()

	if err := h.store.UpsertThreshold(c.Request.Context(), cfg); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Infof("Threshold upserted for sensor %d metric %s", sensorID, cfg.Metric)
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) DeleteThresholds(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	if err := h.store.DeleteThresholdsBySensor(c.Request.Context(), sensorID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Thresholds deleted"})
}

func (h *Handler) GetAlertConfig(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	cfg, err := h.store.GetAlertConfig(c.Request.Context(), sensorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) UpsertAlertConfig(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	var cfg models.AlertConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	cfg.SensorID = sensorID
	cfg.UpdatedAt = time.Now().UTC()

	if err := h.store.UpsertAlertConfig(c.Request.Context(), cfg); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Infof("Alert config upserted for sensor %d (%d levels)", sensorID, len(cfg.Levels))
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) GetSensorAlerts(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	filter := filterFromQuery(c)
	filter.SensorID = sensorID
	list, err := h.store.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetSensorActiveAlerts(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	list, err := h.store.ListAlerts(c.Request.Context(), models.AlertFilter{SensorID: sensorID})
	if err != nil {
		h.fail(c, err)
		return
	}
	active := make([]models.Alert, 0, len(list))
	for _, alert := range list {
		if !alert.State.Terminal() {
			active = append(active, alert)
		}
	}
	c.JSON(http.StatusOK, active)
}

func (h *Handler) GetSensorAlertHistory(c *gin.Context) {
	sensorID, ok := sensorParam(c)
	if !ok {
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	history, err := h.store.AlertHistory(c.Request.Context(), sensorID, since)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	list, err := h.store.ListAlerts(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetAlertStats(c *gin.Context) {
	companyID, _ := strconv.Atoi(c.Query("company_id"))
	stats, err := h.store.AlertStats(c.Request.Context(), companyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	var body struct {
		Comment string `json:"comment"`
	}
	_ = c.ShouldBindJSON(&body)

	alert, err := h.manager.Resolve(c.Request.Context(), c.Param("id"), body.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) EscalateAlert(c *gin.Context) {
	alert, err := h.manager.Escalate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ResendNotification(c *gin.Context) {
	var body struct {
		Channel models.Channel `json:"channel" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	results, err := h.dispatcher.Resend(c.Request.Context(), c.Param("id"), body.Channel)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) GetAlertNotifications(c *gin.Context) {
	attempts, err := h.store.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (h *Handler) TestNotification(c *gin.Context) {
	var body struct {
		Channel   models.Channel   `json:"channel" binding:"required"`
		Recipient models.Recipient `json:"recipient" binding:"required"`
		Severity  models.Severity  `json:"severity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if body.Severity == "" {
		body.Severity = models.SeverityMedium
	}
	if err := h.dispatcher.SendTest(c.Request.Context(), body.Channel, body.Recipient, body.Severity); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent"})
}

func (h *Handler) CreateRecipient(c *gin.Context) {
	var r models.Recipient
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if r.CompanyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
		return
	}
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	r.Active = true

	if err := h.store.CreateRecipient(c.Request.Context(), r); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Infof("Created recipient %s for company %d", r.ID, r.CompanyID)
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRecipientsByCompany(c *gin.Context) {
	companyID, err := strconv.Atoi(c.Param("company_id"))
	if err != nil || companyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid company_id"})
		return
	}
	list, err := h.store.ListRecipientsByCompany(c.Request.Context(), companyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DeleteRecipient(c *gin.Context) {
	if err := h.store.DeleteRecipient(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recipient deleted"})
}

func filterFromQuery(c *gin.Context) models.AlertFilter {
	var filter models.AlertFilter
	if v, err := strconv.Atoi(c.Query("sensor_id")); err == nil {
		filter.SensorID = v
	}
	if v, err := strconv.Atoi(c.Query("company_id")); err == nil {
		filter.CompanyID = v
	}
	filter.Severity = models.Severity(c.Query("severity"))
	filter.State = models.AlertState(c.Query("state"))
	filter.Metric = models.MetricKind(c.Query("metric"))
	filter.Search = c.Query("q")
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = v
	}
	return filter
}
