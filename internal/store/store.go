package store

import (
	"context"
	"errors"
	"fmt"
)

// Tier is the lifetime class of a stored value. Hosts may prune the instance
// tier more aggressively than the persistent tier.
type Tier uint8

const (
	TierInstance Tier = iota + 1
	TierPersistent
)

func (t Tier) String() string {
	switch t {
	case TierInstance:
		return "instance"
	case TierPersistent:
		return "persistent"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

type Key string

var (
	ErrReadOnly    = errors.New("write in read-only transaction")
	ErrUnknownTier = errors.New("unknown storage tier")
	ErrConflict    = errors.New("transaction conflict, retries exhausted")
	ErrNoPollID    = errors.New("poll id is required")
	ErrAfterCommit = errors.New("commit hook failed after commit")
)

// Bucket is one tier as seen from inside a transaction.
type Bucket interface {
	Has(key Key) (bool, error)
	Get(key Key) ([]byte, bool, error)
	Set(key Key, value []byte) error
}

type Txn interface {
	Bucket(tier Tier) Bucket
	// OnCommit registers hook to run exactly once, for the attempt that
	// commits. Backends that commit in a single attempt run hooks just before
	// the commit and a hook error aborts the transaction. Backends that retry
	// fn run them after the commit; a hook error is then reported wrapped in
	// ErrAfterCommit and the writes stay. Views run hooks once fn succeeds.
	OnCommit(hook func() error)
}

// Store is a transactional key-value store scoped to a single poll.
// Update applies every write made by fn, or none of them when fn returns an
// error. Concurrent Updates on the same store never interleave.
type Store interface {
	View(ctx context.Context, fn func(Txn) error) error
	Update(ctx context.Context, fn func(Txn) error) error
}

// Backend hands out per-poll stores over one physical database.
type Backend interface {
	Store(pollID string) (Store, error)
	Close() error
}

type hooks []func() error

func (h *hooks) OnCommit(hook func() error) {
	*h = append(*h, hook)
}

func (h hooks) run() error {
	for _, hook := range h {
		if err := hook(); err != nil {
			return err
		}
	}
	return nil
}

func validTier(t Tier) bool {
	return t == TierInstance || t == TierPersistent
}
