package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

// Caster casts one vote. *api.Client satisfies it.
type Caster interface {
	Vote(ctx context.Context, pollID, voter, option string) (uint32, error)
}

// Stats counts what the simulator saw. Duplicates are the deliberate repeat
// votes; Leaked counts repeats the service wrongly accepted.
type Stats struct {
	Accepted   int64
	Rejected   int64
	Duplicates int64
	Leaked     int64
	Failed     int64
}

type Simulator struct {
	caster Caster
	logger *slog.Logger

	PollIDs  []string
	Options  []string
	Voters   int
	Interval time.Duration
	// every DuplicateEvery-th vote repeats the last voter on purpose
	DuplicateEvery int

	rand  *rand.Rand
	stats struct {
		accepted, rejected, duplicates, leaked, failed atomic.Int64
	}
}

func New(c Caster, logger *slog.Logger) *Simulator {
	return &Simulator{
		caster:         c,
		logger:         logging.Resolve(logger).With("module", "simulation"),
		PollIDs:        []string{"poll1", "poll2", "poll3"},
		Options:        []string{"option-1", "option-2", "option-3"},
		Voters:         1000,
		Interval:       500 * time.Millisecond,
		DuplicateEvery: 5,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run casts a vote every Interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var fraudCounter int
	var lastVoter, lastPollID string

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator received shutdown signal", "event", "simulator_stopped")
			return nil

		case <-ticker.C:
			var voter, pollID string
			duplicate := false
			fraudCounter++
			if s.DuplicateEvery > 0 && fraudCounter >= s.DuplicateEvery && lastVoter != "" {
				voter, pollID = lastVoter, lastPollID
				duplicate = true
				fraudCounter = 0
			} else {
				pollID = s.PollIDs[s.rand.Intn(len(s.PollIDs))]
				voter = fmt.Sprintf("user-%d", s.rand.Intn(s.Voters))
				lastVoter, lastPollID = voter, pollID
			}
			option := s.Options[s.rand.Intn(len(s.Options))]

			castCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			s.Cast(castCtx, pollID, voter, option, duplicate)
			cancel()
		}
	}
}

// Cast sends one vote and records the outcome. A duplicate is expected to be
// rejected with AlreadyVoted. Votes cut short by ctx are not counted.
func (s *Simulator) Cast(ctx context.Context, pollID, voter, option string, duplicate bool) {
	count, err := s.caster.Vote(ctx, pollID, voter, option)
	if err != nil && ctx.Err() != nil {
		s.logger.Debug("vote abandoned", "poll_id", pollID, "voter", voter, "error", err.Error())
		return
	}
	if duplicate {
		s.stats.duplicates.Add(1)
	}

	switch {
	case err == nil && duplicate:
		s.stats.leaked.Add(1)
		s.logger.Error("duplicate vote was accepted",
			"event", "simulator_duplicate_leaked",
			"poll_id", pollID,
			"voter", voter,
		)
	case err == nil:
		s.stats.accepted.Add(1)
		s.logger.Info("vote accepted", "poll_id", pollID, "voter", voter, "option", option, "count", count)
	case errors.Is(err, poll.ErrAlreadyVoted):
		s.stats.rejected.Add(1)
		if duplicate {
			s.logger.Info("duplicate vote rejected", "poll_id", pollID, "voter", voter)
		} else {
			s.logger.Debug("voter already voted", "poll_id", pollID, "voter", voter)
		}
	case errors.Is(err, poll.ErrInvalidOption), errors.Is(err, poll.ErrPollNotInitialized):
		s.stats.rejected.Add(1)
		s.logger.Warn("vote rejected", "poll_id", pollID, "voter", voter, "error", err.Error())
	default:
		s.stats.failed.Add(1)
		s.logger.Error("failed to cast vote", "event", "simulator_cast_failed", "poll_id", pollID, "error", err.Error())
	}
}

func (s *Simulator) Stats() Stats {
	return Stats{
		Accepted:   s.stats.accepted.Load(),
		Rejected:   s.stats.rejected.Load(),
		Duplicates: s.stats.duplicates.Load(),
		Leaked:     s.stats.leaked.Load(),
		Failed:     s.stats.failed.Load(),
	}
}
