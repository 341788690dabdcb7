// Package inmemory provides the terminal in-process tier of the memory store.
//
// The store keeps an append-only log per agent and never fails on Write or
// Query, which makes it the last resort when every external tier is down.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// DefaultMaxEntriesPerAgent is the per-agent retention cap.
const DefaultMaxEntriesPerAgent = 1000

// Store implements storage.Backend in process memory.
type Store struct {
	// logs holds each agent's entries in insertion order.
	logs map[string][]*storage.Entry

	// maxEntries caps every agent's log; the oldest entries are dropped first.
	maxEntries int

	mu sync.RWMutex
}

// Config contains configuration for the in-process store.
type Config struct {
	// MaxEntriesPerAgent caps each agent's log. Zero uses DefaultMaxEntriesPerAgent.
	MaxEntriesPerAgent int
}

// NewStore creates an empty in-process store.
func NewStore(cfg *Config) *Store {
	max := DefaultMaxEntriesPerAgent
	if cfg != nil && cfg.MaxEntriesPerAgent > 0 {
		max = cfg.MaxEntriesPerAgent
	}
	return &Store{
		logs:       make(map[string][]*storage.Entry),
		maxEntries: max,
	}
}

// Name implements storage.Backend.
func (s *Store) Name() string { return "inmemory" }

// Write appends the entry and trims the agent's log to the most recent entries.
func (s *Store) Write(_ context.Context, entry *storage.Entry) error {
	if entry == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.logs[entry.AgentID], entry.Clone())
	if over := len(log) - s.maxEntries; over > 0 {
		// Copy so the dropped prefix can be collected.
		log = append([]*storage.Entry(nil), log[over:]...)
	}
	s.logs[entry.AgentID] = log
	return nil
}

// Query filters the agent's log and returns copies, most recent first.
func (s *Store) Query(_ context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	if opts == nil {
		return nil, nil
	}
	s.mu.RLock()
	log := s.logs[opts.AgentID]
	results := make([]*storage.Entry, 0, len(log))
	for _, e := range log {
		if storage.Matches(e, opts) {
			results = append(results, e.Clone())
		}
	}
	s.mu.RUnlock()

	storage.SortRecentFirst(results)
	return storage.Truncate(results, opts.Limit), nil
}

// UpdateImportance patches the entry in place.
func (s *Store) UpdateImportance(_ context.Context, id int64, agentID string, importance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.logs[agentID] {
		if e.ID == id {
			e.Importance = importance
			return nil
		}
	}
	return storage.ErrNotFound
}

// DeleteOlderThan drops the agent's entries created before cutoff.
func (s *Store) DeleteOlderThan(_ context.Context, agentID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[agentID]
	if !ok {
		return 0, nil
	}
	kept := log[:0]
	for _, e := range log {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(log) - len(kept)
	for i := len(kept); i < len(log); i++ {
		log[i] = nil
	}
	s.logs[agentID] = kept
	return removed, nil
}

// Len returns the number of entries held for an agent.
func (s *Store) Len(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[agentID])
}

// Close implements storage.Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	s.logs = make(map[string][]*storage.Entry)
	s.mu.Unlock()
	return nil
}
