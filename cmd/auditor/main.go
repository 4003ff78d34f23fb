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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guizzs26/single_ballot_poll_system/internal/api"
	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/event"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/metrics"
	"github.com/Guizzs26/single_ballot_poll_system/internal/processing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	slog.SetDefault(logger)

	logger.Info("starting vote auditor", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)

	consumer, err := event.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	if err != nil {
		logger.Error("error creating kafka consumer", "error", err.Error())
		os.Exit(1)
	}
	defer consumer.Close()

	reg := prometheus.NewRegistry()
	processor := processing.NewVoteProcessor(consumer, metrics.NewAuditMetrics(reg, cfg.MetricsNamespace, "audit"), logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err.Error())
		}
	}()

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := processor.Run(mainCtx); err != nil {
			logger.Error("error during processor execution", "error", err.Error())
		}
	}()

	// The `main` blocks here, waiting for a shutdown signal
	<-signalChan

	logger.Info("shutdown signal received, stopping the auditor...")
	cancel()

	reconcile(cfg, processor, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("auditor terminated")
}

// reconcile compares the streamed tallies with the ledger of every poll seen.
func reconcile(cfg config.Config, processor *processing.VoteProcessor, logger *slog.Logger) {
	client := api.NewClient(cfg.BaseURL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, pollID := range processor.Polls() {
		report, err := client.Audit(ctx, pollID)
		if err != nil {
			logger.Warn("could not fetch ledger for reconciliation", "poll_id", pollID, "error", err.Error())
			continue
		}
		mismatches := processor.Diff(report)
		if len(mismatches) == 0 {
			logger.Info("stream matches ledger", "poll_id", pollID, "total_votes", report.TotalVotes)
			continue
		}
		for _, m := range mismatches {
			logger.Warn("stream and ledger disagree",
				"event", "auditor_mismatch",
				"poll_id", pollID,
				"option", m.Option,
				"streamed", m.Streamed,
				"ledger", m.Ledger,
			)
		}
	}
	logger.Info("audit summary", "violations", len(processor.Violations()))
}
