// Package storage provides interfaces and types for memory storage tiers.
//
// It defines the Backend interface that every tier implementation must satisfy,
// along with the entry type shared between tiers and the query options they accept.
package storage

import (
	"context"
	"errors"
	"time"
)

// Predefined errors returned by tier implementations.
var (
	// ErrNotFound indicates that the tier does not hold the requested entry.
	ErrNotFound = errors.New("entry not found")

	// ErrUnavailable indicates that the tier cannot serve the request right now.
	ErrUnavailable = errors.New("tier unavailable")

	// ErrMalformedRecord indicates that a persisted record could not be decoded.
	ErrMalformedRecord = errors.New("malformed stored record")
)

// Entry represents a memory entry as stored by a tier.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.MemoryEntry structure.
type Entry struct {
	// ID is the unique identifier of the entry.
	ID int64

	// AgentID identifies the persona owning this entry (partition key).
	AgentID string

	// UserID identifies the caller; empty means persona-global.
	UserID string

	// Content is the opaque text payload.
	Content string

	// Kind is the memory kind (conversation, knowledge, ...).
	Kind string

	// Importance is the relevance signal in [0.0, 1.0].
	Importance float64

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time

	// ExpiresAt is the retention hint. Tiers with native expiry honour it,
	// the others store it opaquely.
	ExpiresAt time.Time

	// Metadata contains auxiliary attributes.
	Metadata map[string]interface{}

	// Tags contains categorical labels.
	Tags []string
}

// Clone returns a deep copy of the entry so callers can hand it out safely.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Metadata != nil {
		c.Metadata = cloneMap(e.Metadata)
	}
	if e.Tags != nil {
		c.Tags = make([]string, len(e.Tags))
		copy(c.Tags, e.Tags)
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = cloneMap(val)
		case []interface{}:
			out[k] = append([]interface{}(nil), val...)
		case []string:
			out[k] = append([]string(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
}

// Backend defines the interface for one tier of the memory store.
//
// Tiers are tried in order by the core client. Any error returned here is
// treated as "tier unavailable" and makes the client fall through to the next tier.
type Backend interface {
	// Name returns a short identifier used in logs and metrics.
	Name() string

	// Write persists a single entry.
	Write(ctx context.Context, entry *Entry) error

	// Query returns entries of one agent matching opts, most recent first.
	// Entries with equal timestamps keep their insertion order.
	Query(ctx context.Context, opts *QueryOptions) ([]*Entry, error)

	// UpdateImportance patches the importance of an existing entry.
	// Returns ErrNotFound if the tier does not hold it.
	UpdateImportance(ctx context.Context, id int64, agentID string, importance float64) error

	// DeleteOlderThan removes entries of the agent created before cutoff and
	// returns how many were removed. Tiers relying on native expiry return 0, nil.
	DeleteOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error)

	// Close releases resources held by the tier.
	Close() error
}

// QueryOptions contains filters for Query operations.
type QueryOptions struct {
	// AgentID selects the partition. Required.
	AgentID string

	// UserID filters to an exact user when non-empty.
	UserID string

	// Kind filters to an exact kind when non-empty.
	Kind string

	// MinImportance drops entries below this importance.
	MinImportance float64

	// Limit caps the number of results. Zero or negative means no cap.
	Limit int
}
