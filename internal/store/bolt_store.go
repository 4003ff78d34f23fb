package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt persists polls in a single bbolt file: one top-level bucket per poll,
// each holding an "instance" and a "persistent" bucket.
type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening bolt db: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Store(pollID string) (Store, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, ErrNoPollID
	}
	return &boltStore{db: b.db, pollID: []byte(pollID)}, nil
}

func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("error closing bolt db: %w", err)
	}
	return nil
}

type boltStore struct {
	db     *bolt.DB
	pollID []byte
}

func (s *boltStore) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		t := &boltTxn{tx: tx, poll: tx.Bucket(s.pollID)}
		if err := fn(t); err != nil {
			return err
		}
		return t.run()
	})
}

func (s *boltStore) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		poll, err := tx.CreateBucketIfNotExists(s.pollID)
		if err != nil {
			return fmt.Errorf("error creating poll bucket: %w", err)
		}
		t := &boltTxn{tx: tx, poll: poll, writable: true}
		if err := fn(t); err != nil {
			return err
		}
		return t.run()
	})
}

type boltTxn struct {
	hooks
	tx       *bolt.Tx
	poll     *bolt.Bucket
	writable bool
}

func (t *boltTxn) Bucket(tier Tier) Bucket {
	return boltBucket{t: t, tier: tier}
}

type boltBucket struct {
	t    *boltTxn
	tier Tier
}

// bucket returns the nested tier bucket, or nil when it does not exist yet.
func (b boltBucket) bucket(create bool) (*bolt.Bucket, error) {
	if !validTier(b.tier) {
		return nil, ErrUnknownTier
	}
	if b.t.poll == nil {
		return nil, nil
	}
	name := []byte(b.tier.String())
	if create {
		return b.t.poll.CreateBucketIfNotExists(name)
	}
	return b.t.poll.Bucket(name), nil
}

func (b boltBucket) Has(key Key) (bool, error) {
	_, ok, err := b.Get(key)
	return ok, err
}

func (b boltBucket) Get(key Key) ([]byte, bool, error) {
	bk, err := b.bucket(false)
	if err != nil || bk == nil {
		return nil, false, err
	}
	v := bk.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	// bbolt values are only valid for the life of the transaction
	return clone(v), true, nil
}

func (b boltBucket) Set(key Key, value []byte) error {
	if !b.t.writable {
		return ErrReadOnly
	}
	bk, err := b.bucket(true)
	if err != nil {
		return err
	}
	return bk.Put([]byte(key), value)
}
