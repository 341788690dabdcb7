package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

func TestRecord_PreservesEntryFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	e := &storage.Entry{
		ID:         42,
		AgentID:    "agent",
		UserID:     "u1",
		Kind:       "knowledge",
		Content:    "```go\nfmt.Println()\n```",
		Importance: 0.9,
		CreatedAt:  created,
		ExpiresAt:  created.Add(365 * 24 * time.Hour),
		Metadata:   map[string]interface{}{"type": "code_snippet", "score": 1.5},
		Tags:       []string{"code", "technical"},
	}

	r, err := storage.ToRecord(e)
	require.NoError(t, err)
	assert.Equal(t, created.UnixNano(), r.CreatedAt)

	back, err := r.ToEntry()
	require.NoError(t, err)
	assert.Equal(t, e.Content, back.Content)
	assert.Equal(t, e.Tags, back.Tags)
	assert.Equal(t, e.Metadata, back.Metadata)
	assert.True(t, created.Equal(back.CreatedAt))
	assert.Equal(t, e.ExpiresAt.Unix(), back.ExpiresAt.Unix())
}

func TestRecord_MalformedMetadata(t *testing.T) {
	r := &storage.Record{ID: 1, AgentID: "a", Kind: "knowledge", Metadata: "{not json", Tags: "[]"}
	_, err := r.ToEntry()
	assert.ErrorIs(t, err, storage.ErrMalformedRecord)

	r = &storage.Record{ID: 2, AgentID: "a", Kind: "knowledge", Metadata: "{}", Tags: "oops"}
	_, err = r.ToEntry()
	assert.ErrorIs(t, err, storage.ErrMalformedRecord)

	r = &storage.Record{ID: 3, AgentID: "a", Metadata: "{}", Tags: "[]"}
	_, err = r.ToEntry()
	assert.ErrorIs(t, err, storage.ErrMalformedRecord)
}
