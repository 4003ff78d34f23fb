// Package storetest is a compatibility kit every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

var (
	errAbort   = errors.New("abort")
	errClaimed = errors.New("already claimed")
)

// Run exercises backend through the store contract. Poll IDs used here are
// prefixed with "storetest-" so the kit can share a database with other tests.
func Run(t *testing.T, backend store.Backend) {
	t.Run("missing poll id", func(t *testing.T) {
		_, err := backend.Store("  ")
		require.ErrorIs(t, err, store.ErrNoPollID)
	})

	t.Run("get on empty store", func(t *testing.T) {
		s := mustStore(t, backend, "storetest-empty")
		err := s.View(context.Background(), func(tx store.Txn) error {
			for _, tier := range []store.Tier{store.TierInstance, store.TierPersistent} {
				v, ok, err := tx.Bucket(tier).Get("missing")
				require.NoError(t, err)
				require.False(t, ok)
				require.Nil(t, v)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("set then get", func(t *testing.T) {
		require := require.New(t)
		s := mustStore(t, backend, "storetest-setget")
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Txn) error {
			if err := tx.Bucket(store.TierInstance).Set("k", []byte("instance")); err != nil {
				return err
			}
			// writes are visible to later reads of the same transaction
			v, ok, err := tx.Bucket(store.TierInstance).Get("k")
			require.NoError(err)
			require.True(ok)
			require.Equal([]byte("instance"), v)
			return tx.Bucket(store.TierPersistent).Set("k", []byte("persistent"))
		})
		require.NoError(err)

		err = s.View(ctx, func(tx store.Txn) error {
			v, ok, err := tx.Bucket(store.TierInstance).Get("k")
			require.NoError(err)
			require.True(ok)
			require.Equal([]byte("instance"), v)

			v, ok, err = tx.Bucket(store.TierPersistent).Get("k")
			require.NoError(err)
			require.True(ok)
			require.Equal([]byte("persistent"), v)

			has, err := tx.Bucket(store.TierPersistent).Has("k")
			require.NoError(err)
			require.True(has)
			return nil
		})
		require.NoError(err)
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		require := require.New(t)
		s := mustStore(t, backend, "storetest-rollback")
		ctx := context.Background()

		err := s.Update(ctx, func(tx store.Txn) error {
			if err := tx.Bucket(store.TierInstance).Set("a", []byte("1")); err != nil {
				return err
			}
			if err := tx.Bucket(store.TierPersistent).Set("b", []byte("2")); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(err, errAbort)

		err = s.View(ctx, func(tx store.Txn) error {
			has, err := tx.Bucket(store.TierInstance).Has("a")
			require.NoError(err)
			require.False(has)
			has, err = tx.Bucket(store.TierPersistent).Has("b")
			require.NoError(err)
			require.False(has)
			return nil
		})
		require.NoError(err)
	})

	t.Run("view is read only", func(t *testing.T) {
		s := mustStore(t, backend, "storetest-readonly")
		err := s.View(context.Background(), func(tx store.Txn) error {
			return tx.Bucket(store.TierInstance).Set("k", []byte("v"))
		})
		require.Error(t, err)
	})

	t.Run("polls are isolated", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		a := mustStore(t, backend, "storetest-iso-a")
		b := mustStore(t, backend, "storetest-iso-b")

		require.NoError(a.Update(ctx, func(tx store.Txn) error {
			return tx.Bucket(store.TierInstance).Set("k", []byte("a"))
		}))
		require.NoError(b.View(ctx, func(tx store.Txn) error {
			has, err := tx.Bucket(store.TierInstance).Has("k")
			require.NoError(err)
			require.False(has)
			return nil
		}))
	})

	t.Run("tiers are isolated", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		s := mustStore(t, backend, "storetest-tiers")

		require.NoError(s.Update(ctx, func(tx store.Txn) error {
			return tx.Bucket(store.TierInstance).Set("only-instance", []byte("x"))
		}))
		require.NoError(s.View(ctx, func(tx store.Txn) error {
			has, err := tx.Bucket(store.TierPersistent).Has("only-instance")
			require.NoError(err)
			require.False(has)
			return nil
		}))
	})

	t.Run("concurrent read-modify-write", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		s := mustStore(t, backend, "storetest-counter")

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, func(tx store.Txn) error {
					b := tx.Bucket(store.TierPersistent)
					v, _, err := b.Get("n")
					if err != nil {
						return err
					}
					return b.Set("n", append(v, 'x'))
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(err)
		}

		require.NoError(s.View(ctx, func(tx store.Txn) error {
			v, ok, err := tx.Bucket(store.TierPersistent).Get("n")
			require.NoError(err)
			require.True(ok)
			require.Len(v, workers)
			return nil
		}))
	})

	t.Run("commit hooks run once per committed update", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		s := mustStore(t, backend, "storetest-hooks")

		const workers = 16
		var fired atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, func(tx store.Txn) error {
					b := tx.Bucket(store.TierPersistent)
					has, err := b.Has("claimed")
					if err != nil {
						return err
					}
					if has {
						return errClaimed
					}
					if err := b.Set("claimed", []byte("x")); err != nil {
						return err
					}
					tx.OnCommit(func() error {
						fired.Add(1)
						return nil
					})
					return nil
				})
			}()
		}
		wg.Wait()
		close(errs)

		committed := 0
		for err := range errs {
			switch {
			case err == nil:
				committed++
			case errors.Is(err, errClaimed), errors.Is(err, store.ErrConflict):
			default:
				require.NoError(err)
			}
		}
		require.Equal(1, committed)
		require.EqualValues(1, fired.Load())
	})

	t.Run("failed commit hook is reported", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		s := mustStore(t, backend, "storetest-hook-error")

		updateErr := s.Update(ctx, func(tx store.Txn) error {
			tx.OnCommit(func() error { return errAbort })
			return tx.Bucket(store.TierPersistent).Set("k", []byte("v"))
		})
		require.ErrorIs(updateErr, errAbort)

		// the write survives only when the hook ran after the commit
		require.NoError(s.View(ctx, func(tx store.Txn) error {
			has, err := tx.Bucket(store.TierPersistent).Has("k")
			require.NoError(err)
			require.Equal(errors.Is(updateErr, store.ErrAfterCommit), has)
			return nil
		}))
	})

	t.Run("view reads a consistent snapshot", func(t *testing.T) {
		require := require.New(t)
		ctx := context.Background()
		s := mustStore(t, backend, "storetest-snapshot")

		setPair := func(v string) error {
			return s.Update(ctx, func(tx store.Txn) error {
				if err := tx.Bucket(store.TierPersistent).Set("a", []byte(v)); err != nil {
					return err
				}
				return tx.Bucket(store.TierInstance).Set("b", []byte(v))
			})
		}
		require.NoError(setPair("0"))

		done := make(chan struct{})
		var torn, views atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					var a, b []byte
					err := s.View(ctx, func(tx store.Txn) error {
						var err error
						if a, _, err = tx.Bucket(store.TierPersistent).Get("a"); err != nil {
							return err
						}
						b, _, err = tx.Bucket(store.TierInstance).Get("b")
						return err
					})
					if err == nil {
						views.Add(1)
						if string(a) != string(b) {
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

		for i := 1; i <= 100; i++ {
			if err := setPair(strconv.Itoa(i)); err != nil && !errors.Is(err, store.ErrConflict) {
				require.NoError(err)
			}
		}
		close(done)
		wg.Wait()

		require.Positive(views.Load())
		require.Zero(torn.Load())
	})
}

func mustStore(t *testing.T, backend store.Backend, pollID string) store.Store {
	t.Helper()
	s, err := backend.Store(pollID)
	require.NoError(t, err)
	return s
}
