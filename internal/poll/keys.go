package poll

import (
	"encoding/json"
	"fmt"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

// Instance tier: set once by Initialize.
const (
	keyAdmin       store.Key = "admin"
	keyOptions     store.Key = "options"
	keyInitialized store.Key = "initialized"
)

// Persistent tier: the ledger.
const (
	keyTally  store.Key = "tally"
	keyVoters store.Key = "voters"
)

func getJSON(b store.Bucket, key store.Key, v any) (bool, error) {
	raw, ok, err := b.Get(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// mustGetJSON reads a key that Initialize always writes.
func mustGetJSON(b store.Bucket, key store.Key, v any) error {
	ok, err := getJSON(b, key, v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("poll state is corrupt: %s missing after initialization", key)
	}
	return nil
}

func setJSON(b store.Bucket, key store.Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Set(key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func isInitialized(tx store.Txn) (bool, error) {
	ok, err := tx.Bucket(store.TierInstance).Has(keyInitialized)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", keyInitialized, err)
	}
	return ok, nil
}
