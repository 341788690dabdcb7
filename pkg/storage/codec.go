package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the flat, serialisable shape of an Entry used by the SQL and
// key-value tiers. Metadata and tags are carried as JSON text.
type Record struct {
	ID         int64   `json:"id"`
	AgentID    string  `json:"agent_id"`
	UserID     string  `json:"user_id,omitempty"`
	Kind       string  `json:"kind"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
	Metadata   string  `json:"metadata"`
	Tags       string  `json:"tags"`

	// CreatedAt is unix nanoseconds so recency order survives every backend.
	CreatedAt int64 `json:"created_at"`

	// ExpiresAt is unix seconds; zero means no hint.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// ToRecord flattens an entry for persistence.
func ToRecord(e *Entry) (*Record, error) {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	r := &Record{
		ID:         e.ID,
		AgentID:    e.AgentID,
		UserID:     e.UserID,
		Kind:       e.Kind,
		Content:    e.Content,
		Importance: e.Importance,
		Metadata:   string(metadataJSON),
		Tags:       string(tagsJSON),
		CreatedAt:  e.CreatedAt.UnixNano(),
	}
	if !e.ExpiresAt.IsZero() {
		r.ExpiresAt = e.ExpiresAt.Unix()
	}
	return r, nil
}

// ToEntry decodes a persisted record. Decoding failures wrap ErrMalformedRecord.
func (r *Record) ToEntry() (*Entry, error) {
	e := &Entry{
		ID:         r.ID,
		AgentID:    r.AgentID,
		UserID:     r.UserID,
		Kind:       r.Kind,
		Content:    r.Content,
		Importance: r.Importance,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.ExpiresAt > 0 {
		e.ExpiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	}
	if r.Kind == "" {
		return nil, fmt.Errorf("record %d: empty kind: %w", r.ID, ErrMalformedRecord)
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("record %d: metadata: %v: %w", r.ID, err, ErrMalformedRecord)
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("record %d: tags: %v: %w", r.ID, err, ErrMalformedRecord)
		}
	}
	return e, nil
}
