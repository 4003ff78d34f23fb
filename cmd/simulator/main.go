package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Guizzs26/single_ballot_poll_system/internal/api"
	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
	"github.com/Guizzs26/single_ballot_poll_system/internal/simulation"
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

	tokens, err := auth.NewTokens(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to create token minter: %v", err)
	}
	client := api.NewClient(cfg.BaseURL, tokens)
	sim := simulation.New(client, logger)

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// open every simulated poll; one already open from an earlier run is fine
	for _, pollID := range sim.PollIDs {
		err := client.Initialize(mainCtx, pollID, "simulator-admin", sim.Options)
		switch {
		case err == nil:
			logger.Info("poll initialized", "poll_id", pollID)
		case errors.Is(err, poll.ErrAlreadyInitialized):
			logger.Info("poll already open", "poll_id", pollID)
		default:
			log.Fatalf("failed to initialize poll %s: %v", pollID, err)
		}
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sim.Run(mainCtx); err != nil {
			logger.Error("error while running simulator", "error", err.Error())
		}
	}()

	// `main` now hangs here, waiting for a shutdown signal
	logger.Info("simulator is running. Press Ctrl+C to exit", "target", cfg.BaseURL)
	<-signalChan

	// Upon receiving the signal, we cancel the context, which will cause sim.Run() to stop
	logger.Info("shutdown signal received, stopping the simulator...")
	cancel()
	<-done

	st := sim.Stats()
	logger.Info("simulator terminated",
		"accepted", st.Accepted,
		"rejected", st.Rejected,
		"duplicates", st.Duplicates,
		"leaked", st.Leaked,
		"failed", st.Failed,
	)
}
