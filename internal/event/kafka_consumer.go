package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
	"github.com/segmentio/kafka-go"
)

type KafkaConsumer struct {
	reader *kafka.Reader
}

func NewKafkaConsumer(brokers []string, topic, groupID string) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	rCfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10kb
		MaxBytes: 10e6, // 10mb
		MaxWait:  1 * time.Second,
		// a new group replays the whole topic, the audit needs every event
		StartOffset: kafka.FirstOffset,
	}
	r := kafka.NewReader(rCfg)

	return &KafkaConsumer{reader: r}, nil
}

// ReadMessage blocks until the next event arrives or ctx is done.
// Cancellation and io.EOF are returned unwrapped so callers can stop cleanly.
func (kc *KafkaConsumer) ReadMessage(ctx context.Context) (model.VoteEvent, error) {
	msg, err := kc.reader.ReadMessage(ctx)
	if err != nil {
		return model.VoteEvent{}, err
	}

	var ev model.VoteEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return model.VoteEvent{}, fmt.Errorf("error deserializing vote event at offset %d: %w", msg.Offset, err)
	}

	return ev, nil
}

func (kc *KafkaConsumer) Close() error {
	if err := kc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
