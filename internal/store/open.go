package store

import (
	"context"
	"fmt"
)

const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Options selects and locates a backend. DSN is a file path for bolt and
// sqlite and a redis:// URL for redis; memory ignores it.
type Options struct {
	Driver string
	DSN    string
}

func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverBolt:
		return OpenBolt(opts.DSN)
	case DriverSQLite:
		return OpenSQLite(opts.DSN)
	case DriverRedis:
		return NewRedis(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
