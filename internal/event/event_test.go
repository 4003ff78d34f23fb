package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

func TestFanout(t *testing.T) {
	require := require.New(t)
	var got []string
	record := func(name string) Sink {
		return SinkFunc(func(_ context.Context, ev model.VoteEvent) error {
			got = append(got, name+":"+ev.Voter)
			return nil
		})
	}
	boom := errors.New("boom")

	f := Fanout{record("a"), nil, record("b")}
	require.NoError(f.Publish(context.Background(), model.VoteEvent{Voter: "v1"}))
	require.Equal([]string{"a:v1", "b:v1"}, got)

	got = nil
	f = Fanout{record("a"), SinkFunc(func(context.Context, model.VoteEvent) error { return boom }), record("b")}
	err := f.Publish(context.Background(), model.VoteEvent{Voter: "v2"})
	require.ErrorIs(err, boom)
	require.Equal([]string{"a:v2"}, got)
}

func TestLogSink(t *testing.T) {
	ev := model.VoteEvent{Topics: [2]string{model.TopicNamespace, model.TopicVoted}}
	require.NoError(t, LogSink{}.Publish(context.Background(), ev))
}

func TestKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "votes")
	require.Error(t, err)
	_, err = NewKafkaConsumer(nil, "votes", "group")
	require.Error(t, err)
}
