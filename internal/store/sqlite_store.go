package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	poll_id TEXT NOT NULL,
	tier    INTEGER NOT NULL,
	key     TEXT NOT NULL,
	value   BLOB NOT NULL,
	PRIMARY KEY (poll_id, tier, key)
)`

// SQLite persists polls in a single kv table. The pool is pinned to one
// connection so write transactions are serialized by database/sql itself.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating sqlite directory: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating kv table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Store(pollID string) (Store, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, ErrNoPollID
	}
	return &sqliteStore{db: s.db, pollID: pollID}, nil
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("error closing sqlite db: %w", err)
	}
	return nil
}

type sqliteStore struct {
	db     *sql.DB
	pollID string
}

func (s *sqliteStore) View(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, true, fn)
}

func (s *sqliteStore) Update(ctx context.Context, fn func(Txn) error) error {
	return s.run(ctx, false, fn)
}

func (s *sqliteStore) run(ctx context.Context, readOnly bool, fn func(Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting sqlite transaction: %w", err)
	}
	t := &sqliteTxn{ctx: ctx, tx: tx, pollID: s.pollID, readOnly: readOnly}
	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := t.run(); err != nil {
		_ = tx.Rollback()
		return err
	}
	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing sqlite transaction: %w", err)
	}
	return nil
}

type sqliteTxn struct {
	hooks
	ctx      context.Context
	tx       *sql.Tx
	pollID   string
	readOnly bool
}

func (t *sqliteTxn) Bucket(tier Tier) Bucket {
	return sqliteBucket{t: t, tier: tier}
}

type sqliteBucket struct {
	t    *sqliteTxn
	tier Tier
}

func (b sqliteBucket) Has(key Key) (bool, error) {
	_, ok, err := b.Get(key)
	return ok, err
}

func (b sqliteBucket) Get(key Key) ([]byte, bool, error) {
	if !validTier(b.tier) {
		return nil, false, ErrUnknownTier
	}
	var value []byte
	err := b.t.tx.QueryRowContext(b.t.ctx,
		`SELECT value FROM kv WHERE poll_id = ? AND tier = ? AND key = ?`,
		b.t.pollID, int(b.tier), string(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading %s/%s: %w", b.tier, key, err)
	}
	return value, true, nil
}

func (b sqliteBucket) Set(key Key, value []byte) error {
	if !validTier(b.tier) {
		return ErrUnknownTier
	}
	if b.t.readOnly {
		return ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	_, err := b.t.tx.ExecContext(b.t.ctx,
		`INSERT INTO kv (poll_id, tier, key, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (poll_id, tier, key) DO UPDATE SET value = excluded.value`,
		b.t.pollID, int(b.tier), string(key), value,
	)
	if err != nil {
		return fmt.Errorf("error writing %s/%s: %w", b.tier, key, err)
	}
	return nil
}
