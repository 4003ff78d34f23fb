package pubsub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

func TestHubRoutesByPoll(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	go h.Run(ctx)

	p1 := &Client{Hub: h, Send: make(chan []byte, 1), PollID: "p1"}
	p2 := &Client{Hub: h, Send: make(chan []byte, 1), PollID: "p2"}
	h.Register <- p1
	h.Register <- p2

	require.NoError(h.Publish(ctx, model.VoteEvent{PollID: "p1", Voter: "v1", Option: "evet", Count: 1}))

	select {
	case data := <-p1.Send:
		var ev model.VoteEvent
		require.NoError(json.Unmarshal(data, &ev))
		require.Equal("v1", ev.Voter)
		require.EqualValues(1, ev.Count)
	case <-time.After(time.Second):
		t.Fatal("p1 did not receive the event")
	}
	select {
	case <-p2.Send:
		t.Fatal("p2 must not receive p1 events")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-p1.Send:
		require.False(ok, "send channel is closed on shutdown")
	case <-time.After(time.Second):
		t.Fatal("hub did not close clients on shutdown")
	}

	// a stopped hub never blocks publishers
	require.NoError(h.Publish(context.Background(), model.VoteEvent{PollID: "p1"}))
}

func TestHubDropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	slow := &Client{Hub: h, Send: make(chan []byte, 1), PollID: "p1"}
	slow.Send <- []byte("stale")
	h.Register <- slow
	require.NoError(t, h.Publish(ctx, model.VoteEvent{PollID: "p1"}))
	// let the hub hit the full buffer before draining it
	time.Sleep(100 * time.Millisecond)

	require.Equal(t, []byte("stale"), <-slow.Send)
	select {
	case _, ok := <-slow.Send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestServeWS(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil)
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer srv.Close()

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/p1", nil)
	require.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// registration is asynchronous; publish until the client sees something
	go func() {
		for i := 0; i < 50; i++ {
			_ = h.Publish(ctx, model.VoteEvent{PollID: "p1", Voter: "v1", Count: 1})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	_, data, err := conn.Read(dialCtx)
	require.NoError(err)
	var ev model.VoteEvent
	require.NoError(json.Unmarshal(data, &ev))
	require.Equal("p1", ev.PollID)
	require.Equal("v1", ev.Voter)
}
