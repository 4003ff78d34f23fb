package store

import (
	"context"
	"strings"
	"sync"
)

// Memory keeps every poll in process memory. It is the backend used by tests
// and by local tooling that does not need durability.
type Memory struct {
	mu    sync.RWMutex
	polls map[string]map[Tier]map[Key][]byte
}

func NewMemory() *Memory {
	return &Memory{polls: make(map[string]map[Tier]map[Key][]byte)}
}

func (m *Memory) Store(pollID string) (Store, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, ErrNoPollID
	}
	return &memoryStore{m: m, pollID: pollID}, nil
}

func (m *Memory) Close() error {
	return nil
}

type memoryStore struct {
	m      *Memory
	pollID string
}

func (s *memoryStore) read(tier Tier, key Key) ([]byte, bool, error) {
	v, ok := s.m.polls[s.pollID][tier][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *memoryStore) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	o := newOverlay(s.read, true)
	if err := fn(o); err != nil {
		return err
	}
	return o.run()
}

func (s *memoryStore) Update(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	o := newOverlay(s.read, false)
	if err := fn(o); err != nil {
		return err
	}
	if err := o.run(); err != nil {
		return err
	}

	poll := s.m.polls[s.pollID]
	if poll == nil {
		poll = make(map[Tier]map[Key][]byte)
		s.m.polls[s.pollID] = poll
	}
	return o.each(func(tier Tier, key Key, value []byte) error {
		kv := poll[tier]
		if kv == nil {
			kv = make(map[Key][]byte)
			poll[tier] = kv
		}
		kv[key] = value
		return nil
	})
}
