package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)
	cfg, err := Load()
	require.NoError(err)
	require.Equal(":8081", cfg.HTTPAddr)
	require.Equal(store.DriverBolt, cfg.StoreDriver)
	require.Equal("poll-votes", cfg.KafkaTopic)
	require.Empty(cfg.KafkaBrokers)
	require.Equal(time.Hour, cfg.TokenTTL)
	require.Error(cfg.RequireTokenSecret())
}

func TestLoadFromEnv(t *testing.T) {
	require := require.New(t)
	t.Setenv("POLL_STORE_DRIVER", "redis")
	t.Setenv("POLL_STORE_DSN", "redis://localhost:6379/0")
	t.Setenv("POLL_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("POLL_TOKEN_SECRET", "s3cret")
	t.Setenv("POLL_TOKEN_TTL", "15m")

	cfg, err := Load()
	require.NoError(err)
	require.Equal([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(15*time.Minute, cfg.TokenTTL)
	require.NoError(cfg.RequireTokenSecret())
	require.Equal(store.Options{Driver: "redis", DSN: "redis://localhost:6379/0"}, cfg.StoreOptions())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"memory needs no dsn", Config{StoreDriver: "memory", TokenTTL: time.Minute}, true},
		{"bolt needs dsn", Config{StoreDriver: "bolt", TokenTTL: time.Minute}, false},
		{"unknown driver", Config{StoreDriver: "etcd", StoreDSN: "x", TokenTTL: time.Minute}, false},
		{"zero ttl", Config{StoreDriver: "memory"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("POLL_TOKEN_TTL", "soon")
	_, err := Load()
	require.ErrorContains(t, err, "parse env")
}
