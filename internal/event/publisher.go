package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

// Sink receives vote events. Publish is called inside the vote transaction,
// so an error aborts the vote.
type Sink interface {
	Publish(ctx context.Context, ev model.VoteEvent) error
}

type VotePublisher interface {
	Sink
	Close() error
}

// Fanout publishes to each sink in order and stops at the first failure.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.VoteEvent) error {
	for i, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, ev model.VoteEvent) error {
	logging.Resolve(s.Logger).InfoContext(ctx, "vote event",
		"event", "poll_vote_event",
		"event_id", ev.EventID,
		"poll_id", ev.PollID,
		"topic", ev.Topics[0]+"/"+ev.Topics[1],
		"voter", ev.Voter,
		"option", ev.Option,
		"count", ev.Count,
	)
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev model.VoteEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev model.VoteEvent) error {
	return f(ctx, ev)
}
