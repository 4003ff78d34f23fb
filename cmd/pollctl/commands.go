package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/event"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

type cliParams struct {
	Driver   string
	DSN      string
	PollID   string
	As       string
	LogLevel string
}

// pollctl acts as the host: --as is the identity the invocation is
// authorized for, the same role a verified bearer token plays in pollsvc.
func newRootCmd(cfg config.Config) *cobra.Command {
	var params cliParams
	rootCmd := &cobra.Command{
		Use:          "pollctl",
		Short:        "Operate single-ballot polls on a local store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&params.Driver, "store", cfg.StoreDriver, "store driver: memory, bolt, sqlite, redis")
	rootCmd.PersistentFlags().StringVar(&params.DSN, "dsn", cfg.StoreDSN, "store location")
	rootCmd.PersistentFlags().StringVar(&params.PollID, "poll", "default", "poll id")
	rootCmd.PersistentFlags().StringVar(&params.As, "as", "", "identity this invocation is authorized as")
	rootCmd.PersistentFlags().StringVar(&params.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	rootCmd.AddCommand(
		newInitCmd(&params),
		newVoteCmd(&params),
		newCountCmd(&params),
		newOptionsCmd(&params),
		newHasVotedCmd(&params),
		newAuditCmd(&params),
	)
	return rootCmd
}

func newInitCmd(params *cliParams) *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "init [option...]",
		Short: "Open the poll with an admin and a fixed option list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if admin == "" {
				admin = params.As
			}
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				if err := m.Initialize(ctx, admin, args); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "poll %s initialized with %d options\n", m.PollID(), len(args))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "admin identity (defaults to --as)")
	return cmd
}

func newVoteCmd(params *cliParams) *cobra.Command {
	var voter string
	cmd := &cobra.Command{
		Use:   "vote <option>",
		Short: "Cast the single vote of --voter (defaults to --as)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if voter == "" {
				voter = params.As
			}
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				count, err := m.Vote(ctx, voter, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&voter, "voter", "", "voter identity (defaults to --as)")
	return cmd
}

func newCountCmd(params *cliParams) *cobra.Command {
	return &cobra.Command{
		Use:   "count <option>",
		Short: "Print the vote count of an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				count, err := m.VoteCount(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), count)
				return nil
			})
		},
	}
}

func newOptionsCmd(params *cliParams) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the poll options in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				options, err := m.Options(ctx)
				if err != nil {
					return err
				}
				for _, o := range options {
					fmt.Fprintln(cmd.OutOrStdout(), o)
				}
				return nil
			})
		},
	}
}

func newHasVotedCmd(params *cliParams) *cobra.Command {
	return &cobra.Command{
		Use:   "has-voted <voter>",
		Short: "Print whether a voter has voted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				fmt.Fprintln(cmd.OutOrStdout(), m.HasVoted(ctx, args[0]))
				return nil
			})
		},
	}
}

func newAuditCmd(params *cliParams) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Print the full ledger as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPoll(cmd, params, func(ctx context.Context, m *poll.Machine) error {
				report, err := m.Audit(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

func withPoll(cmd *cobra.Command, params *cliParams, fn func(context.Context, *poll.Machine) error) error {
	logger, err := logging.New(cmd.ErrOrStderr(), params.LogLevel, "text")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := store.Open(ctx, store.Options{Driver: params.Driver, DSN: params.DSN})
	if err != nil {
		return fmt.Errorf("open %s store: %w", params.Driver, err)
	}
	defer backend.Close()

	registry := poll.NewRegistry(backend, poll.Deps{
		Auth:   auth.ContextOracle{},
		Sink:   event.LogSink{Logger: logger},
		Logger: logger,
	})
	m, err := registry.Poll(params.PollID)
	if err != nil {
		return err
	}

	if as := strings.TrimSpace(params.As); as != "" {
		ctx = auth.WithPrincipal(ctx, as)
	}
	return fn(ctx, m)
}

// exitCode is 10 plus the poll error code for poll errors, 64 for
// authentication failures and 1 otherwise.
func exitCode(err error) int {
	var perr poll.Error
	switch {
	case errors.As(err, &perr):
		return int(perr.Code()) + 10
	case errors.Is(err, auth.ErrNotAuthorized):
		return 64
	default:
		return 1
	}
}
