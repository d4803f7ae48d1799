package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"alerting-service/internal/evaluator"
	"alerting-service/internal/logging"
	"alerting-service/internal/models"
)

// Config holds broker connection settings for the readings topic.
type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Consumer feeds sensor readings from Kafka into the evaluator. A malformed
// message is logged and skipped; it never stops the loop.
type Consumer struct {
	reader    *kafka.Reader
	evaluator *evaluator.Evaluator
	logger    *logging.Logger
}

type readingMessage struct {
	SensorID  int      `json:"sensor_id"`
	CompanyID int      `json:"company_id"`
	Metric    string   `json:"metric"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
	Timestamp string   `json:"timestamp"`
}

// NewConsumer builds a consumer for the readings topic.
func NewConsumer(cfg Config, ev *evaluator.Evaluator, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &Consumer{reader: reader, evaluator: ev, logger: logger}
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka readings consumer started (topic=%s)", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}
			c.handle(ctx, msg.Value)
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, raw []byte) {
	var payload readingMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Errorf("Unmarshal reading failed: %v", err)
		return
	}

	metric, err := models.ParseMetricKind(payload.Metric)
	if err != nil {
		c.logger.Warnf("Dropping reading for sensor %d: %v", payload.SensorID, err)
		return
	}

	reading := models.Reading{
		SensorID:  payload.SensorID,
		CompanyID: payload.CompanyID,
		Metric:    metric,
		Value:     payload.Value,
		Unit:      payload.Unit,
	}
	if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
		reading.Timestamp = ts
	} else {
		reading.Timestamp = time.Now().UTC()
	}

	class, _, err := c.evaluator.Process(ctx, reading)
	if err != nil {
		if errors.Is(err, models.ErrInvalidReading) {
			c.logger.Warnf("Dropping invalid reading for sensor %d: %v", payload.SensorID, err)
			return
		}
		c.logger.Errorf("Failed to evaluate reading for sensor %d: %v", payload.SensorID, err)
		return
	}
	c.logger.Debugf("Processed reading sensor=%d metric=%s class=%s", payload.SensorID, payload.Metric, class)
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
