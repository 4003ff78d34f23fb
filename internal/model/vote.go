package model

import "time"

// Topic pair every vote event is published under.
const (
	TopicNamespace = "poll"
	TopicVoted     = "voted"
)

// VoteEvent is emitted once per successful vote. Count is the option's tally
// right after the vote was applied.
type VoteEvent struct {
	EventID    string    `json:"event_id"`
	PollID     string    `json:"poll_id"`
	Topics     [2]string `json:"topics"`
	Voter      string    `json:"voter"`
	Option     string    `json:"option"`
	Count      uint32    `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}
