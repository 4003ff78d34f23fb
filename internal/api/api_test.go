package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/metrics"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

type fixture struct {
	reg    *prometheus.Registry
	srv    *httptest.Server
	tokens *auth.Tokens
	client *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "pollsvc", time.Minute)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	app := &App{
		Polls: poll.NewRegistry(store.NewMemory(), poll.Deps{
			Auth:    auth.ContextOracle{},
			Metrics: metrics.NewPollMetrics(reg, "ballot", "poll"),
		}),
		Tokens:  tokens,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)

	return &fixture{reg: reg, srv: srv, tokens: tokens, client: NewClient(srv.URL, tokens)}
}

func (f *fixture) post(t *testing.T, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestClientRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	c := f.client

	require.NoError(c.Initialize(ctx, "p1", "admin", []string{"evet", "hayir"}))

	options, err := c.Options(ctx, "p1")
	require.NoError(err)
	require.Equal([]string{"evet", "hayir"}, options)

	n, err := c.Vote(ctx, "p1", "v1", "evet")
	require.NoError(err)
	require.EqualValues(1, n)
	n, err = c.Vote(ctx, "p1", "v2", "evet")
	require.NoError(err)
	require.EqualValues(2, n)

	n, err = c.VoteCount(ctx, "p1", "evet")
	require.NoError(err)
	require.EqualValues(2, n)
	n, err = c.VoteCount(ctx, "p1", "belki")
	require.NoError(err)
	require.EqualValues(0, n)

	voted, err := c.HasVoted(ctx, "p1", "v1")
	require.NoError(err)
	require.True(voted)
	voted, err = c.HasVoted(ctx, "p1", "v3")
	require.NoError(err)
	require.False(voted)

	report, err := c.Audit(ctx, "p1")
	require.NoError(err)
	require.Equal("admin", report.Admin)
	require.EqualValues(2, report.TotalVotes)
	require.Equal([]string{"v1", "v2"}, report.Voters)
	require.True(report.Consistent)
}

func TestClientMapsPollErrors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := newFixture(t).client

	_, err := c.Options(ctx, "p1")
	require.ErrorIs(err, poll.ErrPollNotInitialized)
	_, err = c.Vote(ctx, "p1", "v1", "evet")
	require.ErrorIs(err, poll.ErrPollNotInitialized)

	require.NoError(c.Initialize(ctx, "p1", "admin", []string{"evet"}))
	require.ErrorIs(c.Initialize(ctx, "p1", "admin", []string{"evet"}), poll.ErrAlreadyInitialized)

	_, err = c.Vote(ctx, "p1", "v1", "hayir")
	require.ErrorIs(err, poll.ErrInvalidOption)

	_, err = c.Vote(ctx, "p1", "v1", "evet")
	require.NoError(err)
	_, err = c.Vote(ctx, "p1", "v1", "evet")
	require.ErrorIs(err, poll.ErrAlreadyVoted)
}

func TestPollsAreIndependent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := newFixture(t).client

	require.NoError(c.Initialize(ctx, "p1", "admin", []string{"a"}))
	require.NoError(c.Initialize(ctx, "p2", "admin", []string{"b"}))
	_, err := c.Vote(ctx, "p1", "v1", "a")
	require.NoError(err)

	voted, err := c.HasVoted(ctx, "p2", "v1")
	require.NoError(err)
	require.False(voted)
	_, err = c.Vote(ctx, "p2", "v1", "b")
	require.NoError(err)
}

func TestStatusMapping(t *testing.T) {
	f := newFixture(t)
	admin, err := f.tokens.Mint("admin")
	require.NoError(t, err)
	v1, err := f.tokens.Mint("v1")
	require.NoError(t, err)

	resp := f.post(t, "/polls/p1/votes", v1, `{"voter":"v1","option":"evet"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.EqualValues(t, poll.ErrPollNotInitialized, decodeBody(t, resp).Code)

	resp = f.post(t, "/polls/p1/initialize", admin, `{"admin":"admin","options":["evet"]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	tests := []struct {
		name   string
		path   string
		token  string
		body   string
		status int
		code   uint32
	}{
		{"reinitialize", "/polls/p1/initialize", admin, `{"admin":"admin","options":["x"]}`, http.StatusConflict, 4},
		{"no token", "/polls/p1/votes", "", `{"voter":"v1","option":"evet"}`, http.StatusUnauthorized, 0},
		{"token for someone else", "/polls/p1/votes", admin, `{"voter":"v1","option":"evet"}`, http.StatusUnauthorized, 0},
		{"garbage token", "/polls/p1/votes", "not-a-jwt", `{"voter":"v1","option":"evet"}`, http.StatusUnauthorized, 0},
		{"invalid option", "/polls/p1/votes", v1, `{"voter":"v1","option":"hayir"}`, http.StatusBadRequest, 3},
		{"bad json", "/polls/p1/votes", v1, `{"voter":`, http.StatusBadRequest, 0},
		{"first vote", "/polls/p1/votes", v1, `{"voter":"v1","option":"evet"}`, http.StatusOK, 0},
		{"second vote", "/polls/p1/votes", v1, `{"voter":"v1","option":"evet"}`, http.StatusConflict, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.post(t, tc.path, tc.token, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			if resp.StatusCode >= 300 {
				require.Equal(t, tc.code, decodeBody(t, resp).Code)
			}
		})
	}
}

func TestNonBearerHeaderRejected(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/polls/p1/options", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.client.Initialize(context.Background(), "p1", "admin", []string{"evet"}))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), "ballot_poll_operations_total")
}

func TestEscapedPathSegments(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	c := newFixture(t).client
	const pollID = "team/alpha 50%"

	require.NoError(c.Initialize(ctx, pollID, "admin", []string{"yes/no", "50%", "%41"}))

	options, err := c.Options(ctx, pollID)
	require.NoError(err)
	require.Equal([]string{"yes/no", "50%", "%41"}, options)

	for _, vote := range []struct{ voter, option string }{
		{"id/1", "yes/no"},
		{"id%2", "50%"},
		{"id 3", "%41"},
	} {
		n, err := c.Vote(ctx, pollID, vote.voter, vote.option)
		require.NoError(err)
		require.EqualValues(1, n)

		n, err = c.VoteCount(ctx, pollID, vote.option)
		require.NoError(err)
		require.EqualValues(1, n, vote.option)

		voted, err := c.HasVoted(ctx, pollID, vote.voter)
		require.NoError(err)
		require.True(voted, vote.voter)
	}

	// the decoded label must not alias the escaped one
	n, err := c.VoteCount(ctx, pollID, "A")
	require.NoError(err)
	require.EqualValues(0, n)
	voted, err := c.HasVoted(ctx, pollID, "id")
	require.NoError(err)
	require.False(voted)
}

func TestUnknownPollsAddNoSeries(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.Options(ctx, "unknown-0")
	require.ErrorIs(err, poll.ErrPollNotInitialized)
	before, err := testutil.GatherAndCount(f.reg, "ballot_poll_operations_total")
	require.NoError(err)

	for i := 1; i <= 50; i++ {
		_, err := f.client.Options(ctx, fmt.Sprintf("unknown-%d", i))
		require.ErrorIs(err, poll.ErrPollNotInitialized)
		_, err = f.client.HasVoted(ctx, fmt.Sprintf("unknown-%d", i), "v1")
		require.NoError(err)
	}

	after, err := testutil.GatherAndCount(f.reg, "ballot_poll_operations_total")
	require.NoError(err)
	// has_voted adds one series however many polls are asked
	require.Equal(before+1, after)
}

func TestJSONEncodeFailureKeepsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "failed to encode")
}

func TestTallyOverflowStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("vote: %w", poll.ErrTallyOverflow))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "tally_overflow", body.Kind)
	require.Zero(t, body.Code)
}
