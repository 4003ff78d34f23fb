package processing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Guizzs26/single_ballot_poll_system/internal/event"
	"github.com/Guizzs26/single_ballot_poll_system/internal/logging"
	"github.com/Guizzs26/single_ballot_poll_system/internal/metrics"
	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

// Violation kinds found on the vote stream.
const (
	KindDuplicateVoter    = "duplicate_voter"
	KindNonMonotonicCount = "non_monotonic_count"
)

type Violation struct {
	Kind  string
	Event model.VoteEvent
	// Expected is the count the auditor predicted for the option.
	Expected uint32
}

// VoteProcessor replays the vote event stream and checks it against the
// ledger's guarantees: one event per voter per poll, and per-option counts
// that grow by exactly one per event.
type VoteProcessor struct {
	consumer event.VoteConsumer
	metrics  *metrics.AuditMetrics
	logger   *slog.Logger

	// ReportEvery is how often the running tally is logged. Zero disables it.
	ReportEvery time.Duration

	mu         sync.RWMutex
	seen       map[string]bool            // event IDs already applied
	voters     map[string]map[string]bool // [pollID][voter] -> bool
	results    map[string]map[string]uint32
	violations []Violation
}

func NewVoteProcessor(c event.VoteConsumer, m *metrics.AuditMetrics, logger *slog.Logger) *VoteProcessor {
	return &VoteProcessor{
		consumer:    c,
		metrics:     m,
		logger:      logging.Resolve(logger).With("module", "processing"),
		ReportEvery: 5 * time.Second,
		seen:        make(map[string]bool),
		voters:      make(map[string]map[string]bool),
		results:     make(map[string]map[string]uint32),
	}
}

// Run reads events until ctx is done. Read errors are logged and the loop
// keeps going; a closed consumer ends the run.
func (vp *VoteProcessor) Run(ctx context.Context) error {
	if vp.ReportEvery > 0 {
		go vp.reportLoop(ctx)
	}

	for {
		ev, err := vp.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				vp.logger.Info("vote processor stopping", "event", "processor_stopped")
				return nil
			}
			if errors.Is(err, io.EOF) {
				vp.logger.Info("vote stream closed", "event", "processor_stream_closed")
				return nil
			}
			vp.logger.Error("error reading vote event", "event", "processor_read_failed", "error", err.Error())
			continue
		}
		vp.Process(ev)
	}
}

func (vp *VoteProcessor) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(vp.ReportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vp.printResults()
		}
	}
}

// Process applies one event and returns the violations it revealed.
// Redelivered events (same event ID) are ignored.
func (vp *VoteProcessor) Process(ev model.VoteEvent) []Violation {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	if ev.EventID != "" {
		if vp.seen[ev.EventID] {
			vp.logger.Debug("redelivered vote event skipped", "event_id", ev.EventID, "poll_id", ev.PollID)
			return nil
		}
		vp.seen[ev.EventID] = true
	}
	if vp.metrics != nil {
		vp.metrics.EventsAudited.WithLabelValues(ev.PollID).Inc()
	}

	if _, ok := vp.voters[ev.PollID]; !ok {
		vp.voters[ev.PollID] = make(map[string]bool)
		vp.results[ev.PollID] = make(map[string]uint32)
	}

	var found []Violation
	if vp.voters[ev.PollID][ev.Voter] {
		found = append(found, Violation{Kind: KindDuplicateVoter, Event: ev})
	}
	expected := vp.results[ev.PollID][ev.Option] + 1
	if ev.Count != expected {
		found = append(found, Violation{Kind: KindNonMonotonicCount, Event: ev, Expected: expected})
	}

	for _, v := range found {
		vp.logger.Warn("vote stream violation",
			"event", "processor_violation",
			"kind", v.Kind,
			"poll_id", ev.PollID,
			"voter", ev.Voter,
			"option", ev.Option,
			"count", ev.Count,
			"expected", v.Expected,
		)
		if vp.metrics != nil {
			vp.metrics.Violations.WithLabelValues(ev.PollID, v.Kind).Inc()
		}
	}
	vp.violations = append(vp.violations, found...)

	vp.voters[ev.PollID][ev.Voter] = true
	// the ledger's count is authoritative; resync to it
	if ev.Count > vp.results[ev.PollID][ev.Option] {
		vp.results[ev.PollID][ev.Option] = ev.Count
	}
	return found
}

// Results returns the tally observed on the stream for pollID.
func (vp *VoteProcessor) Results(pollID string) map[string]uint32 {
	vp.mu.RLock()
	defer vp.mu.RUnlock()

	out := make(map[string]uint32, len(vp.results[pollID]))
	for option, count := range vp.results[pollID] {
		out[option] = count
	}
	return out
}

// Polls lists the poll IDs seen on the stream, sorted.
func (vp *VoteProcessor) Polls() []string {
	vp.mu.RLock()
	defer vp.mu.RUnlock()

	out := make([]string, 0, len(vp.results))
	for pollID := range vp.results {
		out = append(out, pollID)
	}
	sort.Strings(out)
	return out
}

func (vp *VoteProcessor) Violations() []Violation {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return append([]Violation(nil), vp.violations...)
}

// Mismatch is an option whose streamed count differs from the ledger.
type Mismatch struct {
	Option   string `json:"option"`
	Streamed uint32 `json:"streamed"`
	Ledger   uint32 `json:"ledger"`
}

// Diff compares the streamed tally of report's poll with the ledger's tally.
// Options that never received a vote count as zero on the stream.
func (vp *VoteProcessor) Diff(report poll.Report) []Mismatch {
	streamed := vp.Results(report.PollID)

	options := make(map[string]bool, len(report.Tally)+len(streamed))
	for o := range report.Tally {
		options[o] = true
	}
	for o := range streamed {
		options[o] = true
	}

	var out []Mismatch
	for o := range options {
		if streamed[o] != report.Tally[o] {
			out = append(out, Mismatch{Option: o, Streamed: streamed[o], Ledger: report.Tally[o]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Option < out[j].Option })
	return out
}

func (vp *VoteProcessor) printResults() {
	vp.mu.RLock()
	defer vp.mu.RUnlock()

	if len(vp.results) == 0 {
		vp.logger.Info("no vote events audited yet", "event", "processor_results")
		return
	}
	for pollID, options := range vp.results {
		vp.logger.Info("current score",
			"event", "processor_results",
			"poll_id", pollID,
			"voters", len(vp.voters[pollID]),
			"tally", options,
		)
	}
}
