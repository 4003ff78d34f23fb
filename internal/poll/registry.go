package poll

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

// DefaultRegistrySize bounds how many machines a Registry keeps around.
// Machines hold no poll state, so an evicted one is simply rebuilt.
const DefaultRegistrySize = 4096

// Registry hosts independent polls over one backend, one Machine per poll ID.
type Registry struct {
	backend store.Backend
	deps    Deps

	mu    sync.Mutex
	polls *lru.Cache[string, *Machine]
}

func NewRegistry(backend store.Backend, deps Deps) *Registry {
	r, err := NewRegistrySize(backend, deps, DefaultRegistrySize)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistrySize is NewRegistry with an explicit cache size.
func NewRegistrySize(backend store.Backend, deps Deps, size int) (*Registry, error) {
	cache, err := lru.New[string, *Machine](size)
	if err != nil {
		return nil, fmt.Errorf("create poll cache: %w", err)
	}
	return &Registry{
		backend: backend,
		deps:    deps,
		polls:   cache,
	}, nil
}

// Poll returns the machine for pollID, creating it on first use. A poll that
// was never initialized is still returned; its operations report
// ErrPollNotInitialized.
func (r *Registry) Poll(pollID string) (*Machine, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, store.ErrNoPollID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.polls.Get(pollID); ok {
		return m, nil
	}
	s, err := r.backend.Store(pollID)
	if err != nil {
		return nil, fmt.Errorf("open store for poll %s: %w", pollID, err)
	}
	m := New(pollID, s, r.deps)
	r.polls.Add(pollID, m)
	return m, nil
}
