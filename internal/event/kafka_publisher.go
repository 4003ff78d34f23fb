package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

/*
Messages are keyed by poll ID and routed with a hash balancer, so every event
of one poll lands on the same partition and the auditor sees them in commit
order.

RequiredAcks: kafka.RequireAll waits for every in-sync replica. Publish runs
inside the vote transaction, so a vote is only committed once its event is
durable on the broker.

Compression: events are small JSON documents and compress well with Snappy.
*/
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  5,
		Compression:  kafka.Snappy,
	}

	return &KafkaPublisher{writer: w}, nil
}

func (kp *KafkaPublisher) Publish(ctx context.Context, ev model.VoteEvent) error {
	vb, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal vote event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.PollID),
		Value: vb,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(ev.Topics[0] + "/" + ev.Topics[1])},
		},
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func (kp *KafkaPublisher) Close() error {
	if err := kp.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
