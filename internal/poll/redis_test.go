package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

func redisMachine(t *testing.T, deps Deps, options ...string) *Machine {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := store.NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	s, err := backend.Store("p1")
	require.NoError(t, err)
	if deps.Auth == nil {
		deps.Auth = auth.AllowAll{}
	}
	m := New("p1", s, deps)
	require.NoError(t, m.Initialize(context.Background(), "admin", options))
	return m
}

func TestRedisSameVoterRaceEmitsOneEvent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sink := &recordingSink{}
	m := redisMachine(t, Deps{Sink: sink}, "a", "b")

	const attempts = 40
	var accepted atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Vote(ctx, "same-voter", "a")
			if err == nil {
				accepted.Add(1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrAlreadyVoted) && !errors.Is(err, store.ErrConflict) {
			require.NoError(err)
		}
	}

	require.EqualValues(1, accepted.Load())
	n, err := m.VoteCount(ctx, "a")
	require.NoError(err)
	require.EqualValues(1, n)

	events := sink.all()
	require.Len(events, 1)
	require.Equal("same-voter", events[0].Voter)
	require.EqualValues(1, events[0].Count)
}

func TestRedisEventsMatchCommittedVotes(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sink := &recordingSink{}
	m := redisMachine(t, Deps{Sink: sink}, "a", "b")

	const voters = 12
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		for attempt := 0; attempt < 3; attempt++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// losers of a conflict simply try again
				for {
					_, err := m.Vote(ctx, fmt.Sprintf("v%d", i), "a")
					if !errors.Is(err, store.ErrConflict) {
						return
					}
				}
			}(i)
		}
	}
	wg.Wait()

	report, err := m.Audit(ctx)
	require.NoError(err)
	require.True(report.Consistent)
	require.Len(report.Voters, voters)

	events := sink.all()
	require.Len(events, voters)
	seen := make(map[string]bool)
	counts := make(map[uint32]bool)
	for _, ev := range events {
		require.False(seen[ev.Voter], ev.Voter)
		seen[ev.Voter] = true
		require.False(counts[ev.Count], "count %d emitted twice", ev.Count)
		counts[ev.Count] = true
	}
}

func TestRedisAuditIsSnapshot(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := redisMachine(t, Deps{}, "a")

	done := make(chan struct{})
	var audits, torn atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				report, err := m.Audit(ctx)
				if err == nil {
					audits.Add(1)
					if !report.Consistent {
						torn.Add(1)
					}
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	for i := 0; i < 150; i++ {
		_, err := m.Vote(ctx, fmt.Sprintf("v%d", i), "a")
		if err != nil && !errors.Is(err, store.ErrConflict) {
			require.NoError(err)
		}
	}
	close(done)
	wg.Wait()

	require.Positive(audits.Load())
	require.Zero(torn.Load())
}

func TestRedisSinkFailureKeepsCommittedVote(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	sink := &recordingSink{fail: errors.New("broker down")}
	m := redisMachine(t, Deps{Sink: sink}, "a")

	n, err := m.Vote(ctx, "v1", "a")
	require.NoError(err)
	require.EqualValues(1, n)
	require.True(m.HasVoted(ctx, "v1"))

	_, err = m.Vote(ctx, "v1", "a")
	require.ErrorIs(err, ErrAlreadyVoted)
}
