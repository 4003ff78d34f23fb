package poll

import (
	"context"
	"sort"
	"time"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

// Report is a consistent snapshot of the whole ledger.
type Report struct {
	PollID     string            `json:"poll_id"`
	Admin      string            `json:"admin"`
	Options    []string          `json:"options"`
	Tally      map[string]uint32 `json:"tally"`
	Voters     []string          `json:"voters"`
	TotalVotes uint64            `json:"total_votes"`
	// Consistent reports whether the tally total equals the number of voter
	// records.
	Consistent bool `json:"consistent"`
}

// Audit reads every key of the poll in one transaction.
func (m *Machine) Audit(ctx context.Context) (r Report, err error) {
	defer m.observe("audit", time.Now(), &err)

	r.PollID = m.pollID
	err = m.store.View(ctx, func(tx store.Txn) error {
		initialized, err := isInitialized(tx)
		if err != nil {
			return err
		}
		if !initialized {
			return ErrPollNotInitialized
		}
		inst := tx.Bucket(store.TierInstance)
		pers := tx.Bucket(store.TierPersistent)
		if err := mustGetJSON(inst, keyAdmin, &r.Admin); err != nil {
			return err
		}
		if err := mustGetJSON(inst, keyOptions, &r.Options); err != nil {
			return err
		}
		if err := mustGetJSON(pers, keyTally, &r.Tally); err != nil {
			return err
		}
		var voters map[string]bool
		if err := mustGetJSON(pers, keyVoters, &voters); err != nil {
			return err
		}
		r.Voters = make([]string, 0, len(voters))
		for v := range voters {
			r.Voters = append(r.Voters, v)
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	sort.Strings(r.Voters)
	if r.Options == nil {
		r.Options = []string{}
	}
	if r.Tally == nil {
		r.Tally = map[string]uint32{}
	}
	for _, n := range r.Tally {
		r.TotalVotes += uint64(n)
	}
	r.Consistent = r.TotalVotes == uint64(len(r.Voters))
	return r, nil
}
