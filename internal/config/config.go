package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	API struct {
		Port     string
		BasePath string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Telegram struct {
		BotToken      string
		RatePerSecond int
	}
	Alerting struct {
		SchedulerTick      time.Duration
		CriticalMarginPct  float64
		MaxAttempts        int
		BackoffBase        time.Duration
		DefaultLevelMins   int
		DispatchQueueSize  int
		DispatchMaxWorkers int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Database DSN; empty selects the in-memory store (dev mode).
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Kafka settings; empty broker disables the readings consumer.
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// SMS (Twilio) settings
	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if r, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_PER_SECOND")); err == nil {
		cfg.Telegram.RatePerSecond = r
	}

	// Alerting engine settings
	if t, err := strconv.Atoi(os.Getenv("SCHEDULER_TICK_SECONDS")); err == nil {
		cfg.Alerting.SchedulerTick = time.Duration(t) * time.Second
	}
	if m, err := strconv.ParseFloat(os.Getenv("CRITICAL_MARGIN_PCT"), 64); err == nil {
		cfg.Alerting.CriticalMarginPct = m
	}
	if n, err := strconv.Atoi(os.Getenv("MAX_NOTIFICATION_ATTEMPTS")); err == nil {
		cfg.Alerting.MaxAttempts = n
	}
	if b, err := strconv.Atoi(os.Getenv("BACKOFF_BASE_MS")); err == nil {
		cfg.Alerting.BackoffBase = time.Duration(b) * time.Millisecond
	}
	if d, err := strconv.Atoi(os.Getenv("DEFAULT_LEVEL_TIMEOUT_MINUTES")); err == nil {
		cfg.Alerting.DefaultLevelMins = d
	}
	if qs, err := strconv.Atoi(os.Getenv("DISPATCH_QUEUE_SIZE")); err == nil {
		cfg.Alerting.DispatchQueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("DISPATCH_MAX_WORKERS")); err == nil {
		cfg.Alerting.DispatchMaxWorkers = mw
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sensor_readings"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alerting-service"
	}
	if cfg.Telegram.RatePerSecond == 0 {
		cfg.Telegram.RatePerSecond = 25
	}
	if cfg.Alerting.SchedulerTick == 0 {
		cfg.Alerting.SchedulerTick = 30 * time.Second
	}
	if cfg.Alerting.CriticalMarginPct == 0 {
		cfg.Alerting.CriticalMarginPct = 20
	}
	if cfg.Alerting.MaxAttempts == 0 {
		cfg.Alerting.MaxAttempts = 3
	}
	if cfg.Alerting.BackoffBase == 0 {
		cfg.Alerting.BackoffBase = time.Second
	}
	if cfg.Alerting.DefaultLevelMins == 0 {
		cfg.Alerting.DefaultLevelMins = 15
	}
	if cfg.Alerting.DispatchQueueSize == 0 {
		cfg.Alerting.DispatchQueueSize = 500
	}
	if cfg.Alerting.DispatchMaxWorkers == 0 {
		cfg.Alerting.DispatchMaxWorkers = 10
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
