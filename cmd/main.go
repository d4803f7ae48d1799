package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"alerting-service/internal/alerts"
	"alerting-service/internal/api"
	"alerting-service/internal/clock"
	"alerting-service/internal/config"
	"alerting-service/internal/db"
	"alerting-service/internal/dispatch"
	"alerting-service/internal/escalation"
	"alerting-service/internal/evaluator"
	"alerting-service/internal/kafka"
	"alerting-service/internal/logging"
	"alerting-service/internal/metrics"
	"alerting-service/internal/providers"
	"alerting-service/internal/store"
	"alerting-service/internal/store/memory"
	"alerting-service/internal/ws"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	// Select the store backend: Postgres when a DSN is set, in-memory
	// otherwise (dev mode).
	var st store.Store
	if cfg.DB.DSN != "" {
		dbConn, err := db.New(cfg.DB.DSN)
		if err != nil {
			logger.Errorf("Failed to connect to database: %v", err)
			log.Fatalf("Database connection failed: %v", err)
		}
		defer dbConn.Close()
		st = dbConn
	} else {
		logger.Warnf("DB_DSN not set, using in-memory store")
		st = memory.New()
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	clk := clock.Real{}

	// Realtime gateway
	hub := ws.NewHub(logger, 32)

	// Notification channels; unconfigured ones are skipped.
	var senders []dispatch.Sender
	if s := providers.NewEmailSender(cfg); s != nil {
		senders = append(senders, s)
	}
	if s := providers.NewSMSSender(cfg); s != nil {
		senders = append(senders, s)
	}
	if s := providers.NewTelegramSender(cfg); s != nil {
		senders = append(senders, s)
	}
	senders = append(senders, providers.NewRealtimeSender(hub))

	dispatcher := dispatch.New(st, senders, logger, clk, m, dispatch.Options{
		MaxAttempts: cfg.Alerting.MaxAttempts,
		BackoffBase: cfg.Alerting.BackoffBase,
		QueueSize:   cfg.Alerting.DispatchQueueSize,
		MaxWorkers:  cfg.Alerting.DispatchMaxWorkers,
	})
	var wg sync.WaitGroup
	dispatcher.Start(&wg)

	manager := alerts.New(st, hub, dispatcher, logger, clk, m)
	ev := evaluator.New(st, manager, logger, clk, m, cfg.Alerting.CriticalMarginPct)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := escalation.New(st, manager, logger, clk,
		cfg.Alerting.SchedulerTick, time.Duration(cfg.Alerting.DefaultLevelMins)*time.Minute)
	scheduler.Start(ctx, &wg)

	// Kafka readings consumer, optional.
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, ev, logger)
		consumer.Start(ctx, &wg)
	}

	// API server
	handler := api.NewHandler(st, manager, ev, dispatcher, hub, logger)
	router := api.NewRouter(logger, cfg, handler, registry)
	go func() {
		logger.Infof("API server started on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Infof("Shutting down...")
	cancel()
	dispatcher.Stop()
	if consumer != nil {
		consumer.Close()
	}
	wg.Wait()
	logger.Infof("Service stopped")
}
