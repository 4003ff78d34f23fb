package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisRetries = 10

type Redis struct {
	client     *redis.Client
	maxRetries int
}

func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)

	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &Redis{client: c, maxRetries: defaultRedisRetries}, nil
}

func (r *Redis) Store(pollID string) (Store, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, ErrNoPollID
	}
	return &redisStore{client: r.client, pollID: pollID, maxRetries: r.maxRetries}, nil
}

func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}

// redisStore runs every View and Update as a WATCH/MULTI/EXEC transaction.
// Every key read inside fn is watched, so a concurrent writer touching it makes
// EXEC fail and the whole closure is retried against fresh state. A View
// queues a PING so its reads are validated the same way and form a snapshot.
type redisStore struct {
	client     *redis.Client
	pollID     string
	maxRetries int
}

func (s *redisStore) key(tier Tier, key Key) string {
	return fmt.Sprintf("poll:%s:%s:%s", s.pollID, tier, key)
}

func (s *redisStore) View(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, true, fn)
}

func (s *redisStore) Update(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, false, fn)
}

// run retries fn until one attempt's EXEC succeeds. Hooks registered by failed
// attempts are discarded with their overlay; only the committed attempt's
// hooks run, after EXEC.
func (s *redisStore) run(ctx context.Context, readOnly bool, fn func(Txn) error) error {
	var committed *overlay
	txf := func(tx *redis.Tx) error {
		read := func(tier Tier, key Key) ([]byte, bool, error) {
			if !validTier(tier) {
				return nil, false, ErrUnknownTier
			}
			if err := tx.Watch(ctx, s.key(tier, key)).Err(); err != nil {
				return nil, false, fmt.Errorf("error watching key: %w", err)
			}
			return s.get(ctx, tx, tier, key)
		}
		o := newOverlay(read, readOnly)
		if err := fn(o); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !o.dirty() {
				pipe.Ping(ctx)
				return nil
			}
			return o.each(func(tier Tier, key Key, value []byte) error {
				pipe.Set(ctx, s.key(tier, key), value, 0)
				return nil
			})
		})
		if err != nil {
			return err
		}
		committed = o
		return nil
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf)
		if errors.Is(err, redis.TxFailedErr) {
			if err := sleepCtx(ctx, retryDelay(i)); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := committed.run(); err != nil {
			if readOnly {
				return err
			}
			return fmt.Errorf("%w: %w", ErrAfterCommit, err)
		}
		return nil
	}
	return ErrConflict
}

// retryDelay spreads contending writers apart with a small jittered backoff.
func retryDelay(attempt int) time.Duration {
	return time.Duration(rand.Int64N(int64(attempt+1)*int64(time.Millisecond)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *redisStore) get(ctx context.Context, c redis.Cmdable, tier Tier, key Key) ([]byte, bool, error) {
	if !validTier(tier) {
		return nil, false, ErrUnknownTier
	}
	v, err := c.Get(ctx, s.key(tier, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading from redis: %w", err)
	}
	return v, true, nil
}
