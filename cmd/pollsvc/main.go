package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guizzs26/single_ballot_poll_system/internal/api"
	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/event"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/metrics"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
	"github.com/Guizzs26/single_ballot_poll_system/internal/pubsub"
	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireTokenSecret(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	slog.SetDefault(logger)

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := store.Open(mainCtx, cfg.StoreOptions())
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err.Error())
		os.Exit(1)
	}
	defer backend.Close()

	tokens, err := auth.NewTokens(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		logger.Error("failed to build token verifier", "error", err.Error())
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := pubsub.NewHub(logger)
	go hub.Run(mainCtx)

	// kafka is the durable stream and goes first: if it refuses the event
	// the vote is rolled back. The hub never fails.
	sinks := event.Fanout{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error("failed to create kafka publisher", "error", err.Error())
			os.Exit(1)
		}
		defer kp.Close()
		sinks = append(sinks, kp)
		logger.Info("publishing vote events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Warn("POLL_KAFKA_BROKERS not set, vote events only reach websocket clients")
	}
	sinks = append(sinks, hub)

	app := &api.App{
		Polls: poll.NewRegistry(backend, poll.Deps{
			Auth:    auth.ContextOracle{},
			Sink:    sinks,
			Metrics: metrics.NewPollMetrics(reg, cfg.MetricsNamespace, "poll"),
			Logger:  logger,
		}),
		Tokens:  tokens,
		Hub:     hub,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("poll service listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err.Error())
			cancel()
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// `main` blocks here until a shutdown signal or a server failure
	select {
	case <-signalChan:
		logger.Info("shutdown signal received, stopping the poll service...")
	case <-mainCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
	cancel()

	logger.Info("poll service terminated")
}
