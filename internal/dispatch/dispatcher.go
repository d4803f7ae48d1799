// Package dispatch delivers alert notifications over the configured
// channels with bounded retries. One channel's failure never blocks the
// others nor the alert state machine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"alerting-service/internal/clock"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/models"
	"alerting-service/internal/store"
	"alerting-service/internal/utils"
)

// Message is one rendered notification.
type Message struct {
	Subject  string
	Body     string
	Severity models.Severity
	Alert    models.Alert
}

// Sender delivers one message to one recipient over one channel.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg Message, rcpt models.Recipient) error
}

// Store is the persistence surface the dispatcher needs.
type Store interface {
	store.AttemptStore
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	GetThreshold(ctx context.Context, sensorID int, metric models.MetricKind) (models.ThresholdConfig, error)
	GetAlertConfig(ctx context.Context, sensorID int) (models.AlertConfig, error)
	GetRecipients(ctx context.Context, ids []string) ([]models.Recipient, error)
	ListRecipientsByCompany(ctx context.Context, companyID int) ([]models.Recipient, error)
	GetScheduleWindow(ctx context.Context, companyID int) (*models.ScheduleWindow, error)
	MarkRecipientNotified(ctx context.Context, alertID, recipientID string) error
}

// Result statuses per (channel, recipient) chain.
const (
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusExhausted = "exhausted"
	StatusDeferred  = "deferred"
)

// ChannelResult reports the outcome for one (channel, recipient) pair.
type ChannelResult struct {
	Channel     models.Channel `json:"channel"`
	RecipientID string         `json:"recipient_id"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	NextAttempt time.Time      `json:"next_attempt,omitempty"`
}

// Options configures retry policy and the worker pool.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	QueueSize   int
	MaxWorkers  int
}

type job struct {
	alertID string
	level   int
}

// Dispatcher runs a worker pool draining dispatch jobs so that a slow
// channel cannot stall escalation of unrelated alerts.
type Dispatcher struct {
	store   Store
	senders map[models.Channel]Sender
	logger  *logging.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	opts    Options

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs a dispatcher over the given senders.
func New(st Store, senders []Sender, logger *logging.Logger, clk clock.Clock, m *metrics.Metrics, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 500
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	byChannel := make(map[models.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:   st,
		senders: byChannel,
		logger:  logger,
		clock:   clk,
		metrics: m,
		opts:    opts,
		jobs:    make(chan job, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(wg *sync.WaitGroup) {
	d.wg = wg
	for i := 0; i < d.opts.MaxWorkers; i++ {
		wg.Add(1)
		go d.worker(i)
	}
}

// Stop cancels the workers.
func (d *Dispatcher) Stop() {
	d.cancel()
}

// Dispatch enqueues a notification job without blocking the caller.
func (d *Dispatcher) Dispatch(alertID string, level int) {
	select {
	case d.jobs <- job{alertID: alertID, level: level}:
	default:
		d.logger.Errorf("Dispatch queue full, dropping job for alert %s level %d", alertID, level)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debugf("Dispatch worker %d stopped", id)
			return
		case j := <-d.jobs:
			d.Notify(d.ctx, j.alertID, j.level)
		}
	}
}

// Notify sends the alert's notifications for one escalation level and
// returns one result per (channel, recipient) chain. A terminal alert sends
// nothing.
func (d *Dispatcher) Notify(ctx context.Context, alertID string, level int) []ChannelResult {
	alert, err := d.store.GetAlert(ctx, alertID)
	if err != nil {
		d.logger.Errorf("Dispatch failed to load alert %s: %v", alertID, err)
		return nil
	}
	if alert.State.Terminal() {
		return nil
	}

	channels := d.enabledChannels(ctx, alert)
	if len(channels) == 0 {
		return nil
	}

	cfg, maxAttempts := d.alertConfig(ctx, alert)
	msg := d.buildMessage(alert, cfg, level)
	recipients := d.levelRecipients(ctx, alert, cfg, level)

	deferUntil, quiet := d.quietUntil(ctx, alert)

	var results []ChannelResult
	for _, channel := range channels {
		sender, ok := d.senders[channel]
		if !ok {
			continue
		}
		for _, rcpt := range d.channelRecipients(channel, recipients) {
			if quiet && channel != models.ChannelRealtime {
				results = append(results, ChannelResult{
					Channel:     channel,
					RecipientID: rcpt.ID,
					Status:      StatusDeferred,
					NextAttempt: deferUntil,
				})
				continue
			}
			results = append(results, d.deliver(ctx, sender, msg, alert, rcpt, level, maxAttempts, false))
		}
	}

	if quiet {
		d.requeueAfterQuiet(alertID, level, deferUntil)
	}
	return results
}

// deliver runs one retry chain for a (channel, recipient) pair, recording
// every attempt and honoring the persistent attempt ceiling.
func (d *Dispatcher) deliver(ctx context.Context, sender Sender, msg Message, alert models.Alert, rcpt models.Recipient, level, maxAttempts int, manual bool) ChannelResult {
	channel := sender.Channel()
	result := ChannelResult{Channel: channel, RecipientID: rcpt.ID}

	prior, err := d.store.CountAttempts(ctx, alert.ID, channel, rcpt.ID)
	if err != nil {
		d.logger.Errorf("Failed to count attempts for alert %s channel %s: %v", alert.ID, channel, err)
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}
	if prior >= maxAttempts {
		result.Status = StatusExhausted
		result.Error = models.ErrChannelExhausted.Error()
		return result
	}

	tries := maxAttempts - prior
	if manual {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		if delay := utils.Backoff(d.opts.BackoffBase, i, d.opts.BackoffMax); delay > 0 {
			if !d.wait(ctx, delay) {
				break
			}
		}

		sendErr := sender.Send(ctx, msg, rcpt)
		d.recordAttempt(ctx, alert, channel, rcpt, level, prior+i, sendErr, manual)

		if sendErr == nil {
			if err := d.store.MarkRecipientNotified(ctx, alert.ID, rcpt.ID); err != nil {
				d.logger.Errorf("Failed to mark recipient %s notified: %v", rcpt.ID, err)
			}
			result.Status = StatusSent
			return result
		}
		lastErr = sendErr
		d.logger.Warnf("Send via %s to %s failed (attempt %d/%d): %v", channel, rcpt.ID, prior+i+1, maxAttempts, sendErr)
	}

	result.Error = fmt.Sprintf("%v", lastErr)
	if prior+tries >= maxAttempts {
		result.Status = StatusExhausted
		d.logger.Errorf("Channel %s exhausted for alert %s recipient %s", channel, alert.ID, rcpt.ID)
	} else {
		result.Status = StatusFailed
	}
	return result
}

// Resend re-sends one channel's notification on operator request. It
// bypasses the quiet-hours window but still counts against the attempt
// ceiling.
func (d *Dispatcher) Resend(ctx context.Context, alertID string, channel models.Channel) ([]ChannelResult, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", models.ErrConfigurationInvalid, channel)
	}
	alert, err := d.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.State.Terminal() {
		return nil, fmt.Errorf("alert %s: %w", alertID, models.ErrAlreadyTerminal)
	}
	sender, ok := d.senders[channel]
	if !ok {
		return nil, fmt.Errorf("%w: channel %q has no configured sender", models.ErrConfigurationInvalid, channel)
	}

	cfg, maxAttempts := d.alertConfig(ctx, alert)
	msg := d.buildMessage(alert, cfg, alert.EscalationLevel)
	recipients := d.channelRecipients(channel, d.levelRecipients(ctx, alert, cfg, alert.EscalationLevel))

	var results []ChannelResult
	for _, rcpt := range recipients {
		results = append(results, d.deliver(ctx, sender, msg, alert, rcpt, alert.EscalationLevel, maxAttempts, true))
	}
	return results, nil
}

// SendTest sends a synthetic message to a single recipient without touching
// any alert or attempt record.
func (d *Dispatcher) SendTest(ctx context.Context, channel models.Channel, rcpt models.Recipient, severity models.Severity) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%w: channel %q has no configured sender", models.ErrConfigurationInvalid, channel)
	}
	msg := Message{
		Subject:  fmt.Sprintf("[%s] Test notification", severity),
		Body:     "This is a test notification from the alerting service. No action is required.",
		Severity: severity,
	}
	if err := sender.Send(ctx, msg, rcpt); err != nil {
		return fmt.Errorf("test send via %s failed: %w", channel, err)
	}
	return nil
}

func (d *Dispatcher) enabledChannels(ctx context.Context, alert models.Alert) []models.Channel {
	cfg, err := d.store.GetThreshold(ctx, alert.SensorID, alert.Metric)
	if err != nil {
		// Threshold deleted after the alert fired; keep the live channel so
		// operators still see the alert.
		return []models.Channel{models.ChannelRealtime}
	}
	var channels []models.Channel
	if cfg.NotifyEmail {
		channels = append(channels, models.ChannelEmail)
	}
	if cfg.NotifySMS {
		channels = append(channels, models.ChannelSMS)
	}
	if cfg.NotifyTelegram {
		channels = append(channels, models.ChannelTelegram)
	}
	if cfg.NotifyRealtime {
		channels = append(channels, models.ChannelRealtime)
	}
	return channels
}

func (d *Dispatcher) alertConfig(ctx context.Context, alert models.Alert) (models.AlertConfig, int) {
	cfg, err := d.store.GetAlertConfig(ctx, alert.SensorID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			d.logger.Errorf("Failed to load alert config for sensor %d: %v", alert.SensorID, err)
		}
		return models.AlertConfig{}, d.opts.MaxAttempts
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.opts.MaxAttempts
	}
	return cfg, maxAttempts
}

// levelRecipients resolves the recipient set bound to the escalation level,
// falling back to all active company recipients when no ladder is
// configured.
func (d *Dispatcher) levelRecipients(ctx context.Context, alert models.Alert, cfg models.AlertConfig, level int) []models.Recipient {
	var recipients []models.Recipient
	var err error
	if lvl, ok := cfg.LevelAt(level); ok && len(lvl.RecipientIDs) > 0 {
		recipients, err = d.store.GetRecipients(ctx, lvl.RecipientIDs)
	} else {
		recipients, err = d.store.ListRecipientsByCompany(ctx, alert.CompanyID)
	}
	if err != nil {
		d.logger.Errorf("Failed to resolve recipients for alert %s: %v", alert.ID, err)
		return nil
	}
	active := recipients[:0]
	for _, r := range recipients {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// channelRecipients filters recipients addressable on the channel. The
// realtime channel broadcasts, so it uses one pseudo recipient.
func (d *Dispatcher) channelRecipients(channel models.Channel, recipients []models.Recipient) []models.Recipient {
	if channel == models.ChannelRealtime {
		return []models.Recipient{{ID: "realtime", Name: "realtime", Active: true}}
	}
	var out []models.Recipient
	for _, r := range recipients {
		switch channel {
		case models.ChannelEmail:
			if r.Email != "" {
				out = append(out, r)
			}
		case models.ChannelSMS:
			if r.Phone != "" {
				out = append(out, r)
			}
		case models.ChannelTelegram:
			if r.TelegramChatID != 0 {
				out = append(out, r)
			}
		}
	}
	return out
}

// quietUntil reports whether dispatch is currently inside the company's
// quiet hours. CRITICA severity always bypasses the window.
func (d *Dispatcher) quietUntil(ctx context.Context, alert models.Alert) (time.Time, bool) {
	if alert.Severity == models.SeverityCritical {
		return time.Time{}, false
	}
	window, err := d.store.GetScheduleWindow(ctx, alert.CompanyID)
	if err != nil {
		d.logger.Errorf("Failed to load schedule window for company %d: %v", alert.CompanyID, err)
		return time.Time{}, false
	}
	if window == nil {
		return time.Time{}, false
	}
	now := d.clock.Now()
	if window.Contains(now) {
		return time.Time{}, false
	}
	return window.NextOpen(now), true
}

// requeueAfterQuiet re-enqueues the job when the window next opens. Deferred
// notifications are delayed, never dropped.
func (d *Dispatcher) requeueAfterQuiet(alertID string, level int, openAt time.Time) {
	delay := openAt.Sub(d.clock.Now())
	if delay <= 0 {
		delay = time.Minute
	}
	d.logger.Infof("Deferring notifications for alert %s until %s", alertID, openAt.Format(time.RFC3339))
	time.AfterFunc(delay, func() {
		select {
		case <-d.ctx.Done():
		default:
			d.Dispatch(alertID, level)
		}
	})
}

func (d *Dispatcher) recordAttempt(ctx context.Context, alert models.Alert, channel models.Channel, rcpt models.Recipient, level, retry int, sendErr error, manual bool) {
	attempt := models.NotificationAttempt{
		ID:              uuid.New().String(),
		AlertID:         alert.ID,
		Channel:         channel,
		EscalationLevel: level,
		RecipientID:     rcpt.ID,
		Address:         addressFor(channel, rcpt),
		Timestamp:       d.clock.Now(),
		Success:         sendErr == nil,
		Retry:           retry,
		Manual:          manual,
	}
	if sendErr != nil {
		attempt.Error = sendErr.Error()
	}
	if err := d.store.InsertAttempt(ctx, attempt); err != nil {
		d.logger.Errorf("Failed to record notification attempt: %v", err)
	}
	if d.metrics != nil {
		status := StatusSent
		if sendErr != nil {
			status = StatusFailed
		}
		d.metrics.NotificationsSent.WithLabelValues(string(channel), status).Inc()
	}
}

func (d *Dispatcher) buildMessage(alert models.Alert, cfg models.AlertConfig, level int) Message {
	body := alert.Message
	if lvl, ok := cfg.LevelAt(level); ok && lvl.MessageOverride != "" {
		body = lvl.MessageOverride
	}
	return Message{
		Subject: fmt.Sprintf("[%s] %s alert on sensor %d", alert.Severity, alert.Metric, alert.SensorID),
		Body: fmt.Sprintf("%s\nSensor: %d\nMetric: %s\nValue: %.2f %s\nEscalation level: %d",
			body, alert.SensorID, alert.Metric, alert.TriggeringValue, alert.Unit, level),
		Severity: alert.Severity,
		Alert:    alert,
	}
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func addressFor(channel models.Channel, rcpt models.Recipient) string {
	switch channel {
	case models.ChannelEmail:
		return rcpt.Email
	case models.ChannelSMS:
		return rcpt.Phone
	case models.ChannelTelegram:
		return fmt.Sprintf("%d", rcpt.TelegramChatID)
	default:
		return string(channel)
	}
}
