package event

import (
	"context"

	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

type VoteConsumer interface {
	ReadMessage(ctx context.Context) (model.VoteEvent, error)
	Close() error
}
