package core

import (
	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// fromStorageEntry converts a tier entry into the public MemoryEntry.
func fromStorageEntry(e *storage.Entry) *MemoryEntry {
	if e == nil {
		return nil
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return &MemoryEntry{
		ID:         e.ID,
		AgentID:    e.AgentID,
		UserID:     e.UserID,
		Content:    e.Content,
		Kind:       Kind(e.Kind),
		Importance: e.Importance,
		Timestamp:  e.CreatedAt,
		Metadata:   metadata,
		Tags:       tags,
	}
}

// toMemoryEntries converts a batch, never returning nil. Entries of an
// unknown kind are malformed and skipped.
func (c *Client) toMemoryEntries(entries []*storage.Entry) []*MemoryEntry {
	out := make([]*MemoryEntry, 0, len(entries))
	for _, e := range entries {
		if !Kind(e.Kind).Valid() {
			c.logger.Warn().Int64("id", e.ID).Str("kind", e.Kind).Msg("skipping entry of unknown kind")
			continue
		}
		out = append(out, fromStorageEntry(e))
	}
	return out
}
