// Package poll implements a single-ballot poll: an administrator fixes a set
// of options once, every identity may vote exactly once, and the tally plus
// the record of who voted are kept in a transactional key-value store.
//
// Each operation is one store transaction. Every check runs before the first
// write, so a rejected call never leaves partial state behind.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/event"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/metrics"
	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

// Deps are the host collaborators of a poll. Auth defaults to
// auth.ContextOracle; a nil Sink drops events; Metrics is optional.
type Deps struct {
	Auth    auth.Oracle
	Sink    event.Sink
	Metrics *metrics.PollMetrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

type Machine struct {
	pollID string
	store  store.Store
	auth   auth.Oracle
	sink   event.Sink
	mx     *metrics.PollMetrics
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(pollID string, s store.Store, deps Deps) *Machine {
	m := &Machine{
		pollID: pollID,
		store:  s,
		auth:   deps.Auth,
		sink:   deps.Sink,
		mx:     deps.Metrics,
		logger: logging.Resolve(deps.Logger).With("module", "poll", "poll_id", pollID),
		now:    deps.Now,
		newID:  deps.NewID,
	}
	if m.auth == nil {
		m.auth = auth.ContextOracle{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

func (m *Machine) PollID() string {
	return m.pollID
}

// Initialize stores admin and options and opens the poll. It fails with
// ErrAlreadyInitialized, without touching state, once the poll is open; that
// check runs before the admin is authenticated.
//
// Options are kept verbatim. Duplicate labels are not rejected: they stay
// duplicated in Options but collapse into a single tally entry.
func (m *Machine) Initialize(ctx context.Context, admin string, options []string) (err error) {
	defer m.observe("initialize", time.Now(), &err)

	err = m.store.Update(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil {
			return err
		}
		if initialized {
			return ErrAlreadyInitialized
		}

		if err := m.auth.RequireAuth(ctx, admin); err != nil {
			return err
		}

		opts := append(make([]string, 0, len(options)), options...)
		tally := make(map[string]uint32, len(opts))
		for _, o := range opts {
			tally[o] = 0
		}

		inst := tx.Bucket(store.TierInstance)
		pers := tx.Bucket(store.TierPersistent)
		if err := setJSON(inst, keyAdmin, admin); err != nil {
			return err
		}
		if err := setJSON(inst, keyOptions, opts); err != nil {
			return err
		}
		if err := setJSON(pers, keyTally, tally); err != nil {
			return err
		}
		if err := setJSON(pers, keyVoters, map[string]bool{}); err != nil {
			return err
		}
		return setJSON(inst, keyInitialized, true)
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "poll initialized",
		"event", "poll_initialized",
		"admin", admin,
		"options", len(options),
	)
	return nil
}

// Vote records voter's single vote for option and returns the option's new
// count. Checks run in a fixed order: initialized, voter authenticated, not
// yet voted, option valid. Authentication comes before the ledger checks so an
// unauthenticated caller learns nothing about the voter or the option.
//
// The vote event is published from a commit hook, so it goes out once and only
// for the attempt that commits. On backends that commit in one attempt a sink
// failure rolls the vote back. On Redis the hook runs after EXEC: the vote
// stands, the failure is logged and the count is still returned.
func (m *Machine) Vote(ctx context.Context, voter, option string) (count uint32, err error) {
	defer m.observe("vote", time.Now(), &err)

	err = m.store.Update(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil {
			return err
		}
		if !initialized {
			return ErrPollNotInitialized
		}

		if err := m.auth.RequireAuth(ctx, voter); err != nil {
			return err
		}

		pers := tx.Bucket(store.TierPersistent)
		var voters map[string]bool
		if err := mustGetJSON(pers, keyVoters, &voters); err != nil {
			return err
		}
		if _, ok := voters[voter]; ok {
			return ErrAlreadyVoted
		}

		var tally map[string]uint32
		if err := mustGetJSON(pers, keyTally, &tally); err != nil {
			return err
		}
		current, ok := tally[option]
		if !ok {
			return ErrInvalidOption
		}

		if current == math.MaxUint32 {
			return ErrTallyOverflow
		}
		count = current + 1
		tally[option] = count
		if voters == nil {
			voters = make(map[string]bool)
		}
		voters[voter] = true

		if err := setJSON(pers, keyTally, tally); err != nil {
			return err
		}
		if err := setJSON(pers, keyVoters, voters); err != nil {
			return err
		}
		n := count
		tx.OnCommit(func() error {
			return m.publish(ctx, voter, option, n)
		})
		return nil
	})
	if errors.Is(err, store.ErrAfterCommit) {
		m.logger.ErrorContext(ctx, "vote committed but event not published",
			"event", "poll_vote_event_lost",
			"voter", voter,
			"option", option,
			"count", count,
			"error", err.Error(),
		)
		err = nil
	}
	if err != nil {
		var perr Error
		if errors.As(err, &perr) {
			m.logger.WarnContext(ctx, "vote rejected",
				"event", "poll_vote_rejected",
				"voter", voter,
				"option", option,
				"reason", perr.Kind(),
			)
		}
		return 0, err
	}

	if m.mx != nil {
		m.mx.VotesAccepted.WithLabelValues(m.pollID, option).Inc()
	}
	m.logger.InfoContext(ctx, "vote recorded",
		"event", "poll_vote_recorded",
		"voter", voter,
		"option", option,
		"count", count,
	)
	return count, nil
}

// VoteCount returns the tally for option. Unknown labels report 0, exactly
// like a valid option nobody voted for.
func (m *Machine) VoteCount(ctx context.Context, option string) (count uint32, err error) {
	defer m.observe("vote_count", time.Now(), &err)

	err = m.store.View(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil {
			return err
		}
		if !initialized {
			return ErrPollNotInitialized
		}
		var tally map[string]uint32
		if err := mustGetJSON(tx.Bucket(store.TierPersistent), keyTally, &tally); err != nil {
			return err
		}
		count = tally[option]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Options returns the option list exactly as given to Initialize.
func (m *Machine) Options(ctx context.Context) (options []string, err error) {
	defer m.observe("options", time.Now(), &err)

	err = m.store.View(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil {
			return err
		}
		if !initialized {
			return ErrPollNotInitialized
		}
		return mustGetJSON(tx.Bucket(store.TierInstance), keyOptions, &options)
	})
	if err != nil {
		return nil, err
	}
	if options == nil {
		options = []string{}
	}
	return options, nil
}

// HasVoted never fails and needs no authentication. Anything short of a
// readable voter record, including an uninitialized poll, reports false.
func (m *Machine) HasVoted(ctx context.Context, voter string) bool {
	start := time.Now()
	var voted bool
	err := m.store.View(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil || !initialized {
			return err
		}
		var voters map[string]bool
		if _, err := getJSON(tx.Bucket(store.TierPersistent), keyVoters, &voters); err != nil {
			return err
		}
		_, voted = voters[voter]
		return nil
	})
	m.observe("has_voted", start, &err)
	if err != nil {
		m.logger.ErrorContext(ctx, "has_voted lookup failed",
			"event", "poll_has_voted_failed",
			"voter", voter,
			"error", err.Error(),
		)
		return false
	}
	return voted
}

func (m *Machine) publish(ctx context.Context, voter, option string, count uint32) error {
	if m.sink == nil {
		return nil
	}
	return m.sink.Publish(ctx, model.VoteEvent{
		EventID:    m.newID(),
		PollID:     m.pollID,
		Topics:     [2]string{model.TopicNamespace, model.TopicVoted},
		Voter:      voter,
		Option:     option,
		Count:      count,
		OccurredAt: m.now().UTC(),
	})
}

func (m *Machine) observe(op string, start time.Time, errp *error) {
	if m.mx == nil {
		return
	}
	m.mx.OperationTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.mx.Operations.WithLabelValues(op, resultOf(*errp)).Inc()
}

func resultOf(err error) string {
	var perr Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr):
		return perr.Kind()
	case errors.Is(err, auth.ErrNotAuthorized):
		return "unauthenticated"
	default:
		return "error"
	}
}
