package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	cfg := config.Config{StoreDriver: "bolt", StoreDSN: dsn, LogLevel: "error"}
	cmd := newRootCmd(cfg)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPollctlSession(t *testing.T) {
	require := require.New(t)
	dsn := filepath.Join(t.TempDir(), "polls.db")

	out, err := run(t, dsn, "init", "evet", "hayir", "--as", "admin")
	require.NoError(err)
	require.Contains(out, "initialized with 2 options")

	out, err = run(t, dsn, "vote", "evet", "--as", "v1")
	require.NoError(err)
	require.Equal("1\n", out)

	_, err = run(t, dsn, "vote", "evet", "--as", "v1")
	require.ErrorIs(err, poll.ErrAlreadyVoted)

	_, err = run(t, dsn, "vote", "belki", "--as", "v2")
	require.ErrorIs(err, poll.ErrInvalidOption)

	// v2 did not authorize this invocation
	_, err = run(t, dsn, "vote", "hayir", "--voter", "v2", "--as", "v3")
	require.ErrorIs(err, auth.ErrNotAuthorized)

	out, err = run(t, dsn, "count", "evet")
	require.NoError(err)
	require.Equal("1\n", out)

	out, err = run(t, dsn, "options")
	require.NoError(err)
	require.Equal([]string{"evet", "hayir"}, strings.Fields(out))

	out, err = run(t, dsn, "has-voted", "v1")
	require.NoError(err)
	require.Equal("true\n", out)
	out, err = run(t, dsn, "has-voted", "v2")
	require.NoError(err)
	require.Equal("false\n", out)

	out, err = run(t, dsn, "audit")
	require.NoError(err)
	var report poll.Report
	require.NoError(json.Unmarshal([]byte(out), &report))
	require.Equal("admin", report.Admin)
	require.Equal([]string{"v1"}, report.Voters)
	require.True(report.Consistent)
}

func TestPollctlPollsAreSeparate(t *testing.T) {
	require := require.New(t)
	dsn := filepath.Join(t.TempDir(), "polls.db")

	_, err := run(t, dsn, "--poll", "a", "init", "x", "--as", "admin")
	require.NoError(err)

	_, err = run(t, dsn, "--poll", "b", "options")
	require.ErrorIs(err, poll.ErrPollNotInitialized)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 12, exitCode(poll.ErrAlreadyVoted))
	require.Equal(t, 64, exitCode(auth.ErrNotAuthorized))
	require.Equal(t, 1, exitCode(errors.New("disk full")))
}
