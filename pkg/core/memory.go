package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// Client is the tiered agent memory store.
//
// Every operation walks the tiers in fixed order: semantic (optional),
// durable (optional), then the terminal in-process tier. Tier failures and
// timeouts are logged and converted into a fallthrough; callers only ever see
// a *ValidationError.
//
// The client is safe for concurrent use.
//
// Example usage:
//
//	client, _ := core.NewClient(inmemory.NewStore(nil),
//	    core.WithDurableTier(sqliteTier),
//	)
//	defer client.Close()
//
//	id, _ := client.Store(ctx, "tech_mentor", "User: hi\nAgent: hello",
//	    core.KindConversation, core.WithUserID("user_001"))
type Client struct {
	semantic storage.Backend
	durable  storage.Backend
	terminal storage.Backend

	tierTimeout   time.Duration
	retention     time.Duration
	topicKeywords []string

	logger            zerolog.Logger
	metricsRegisterer prometheus.Registerer
	metrics           *tierMetrics

	nodeID        int64
	snowflakeNode *snowflake.Node

	now func() time.Time
}

// NewClient creates a memory client around the terminal tier.
//
// The terminal tier is expected never to fail, normally an inmemory.Store.
//
// Args:
//   - terminal: last tier of the chain (required)
//   - opts: optional semantic and durable tiers, logger, metrics and clock
//
// Returns:
//   - *Client: memory client instance
//   - error: when terminal is nil or the node ID is invalid
func NewClient(terminal storage.Backend, opts ...ClientOption) (*Client, error) {
	if terminal == nil {
		return nil, NewMemoryError("NewClient", ErrInvalidConfig)
	}

	c := &Client{
		terminal:      terminal,
		tierTimeout:   DefaultTierTimeout,
		retention:     DefaultRetention,
		topicKeywords: DefaultTopicKeywords,
		logger:        log.Logger.With().Str("component", "memory_store").Logger(),
		nodeID:        1,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}

	node, err := snowflake.NewNode(c.nodeID)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	c.snowflakeNode = node
	c.metrics = newTierMetrics(c.metricsRegisterer)

	return c, nil
}

// Store writes an entry to the first tier that accepts it and returns its ID.
//
// Only a *ValidationError is returned; tier failures fall through to the
// terminal tier.
//
// Example:
//
//	id, err := client.Store(ctx, "tech_mentor", "User prefers Go", core.KindKnowledge,
//	    core.WithImportance(0.8),
//	    core.WithTags("go", "preference"),
//	)
func (c *Client) Store(ctx context.Context, agentID, content string, kind Kind, opts ...StoreOption) (int64, error) {
	o := applyStoreOptions(opts)
	if err := validateRequest(&storeRequest{AgentID: agentID, Kind: kind, Importance: o.Importance}); err != nil {
		return 0, err
	}
	metadata, err := normalizeMetadata(o.Metadata)
	if err != nil {
		return 0, err
	}

	now := c.now()
	entry := &storage.Entry{
		ID:         c.snowflakeNode.Generate().Int64(),
		AgentID:    agentID,
		UserID:     o.UserID,
		Content:    content,
		Kind:       string(kind),
		Importance: o.Importance,
		CreatedAt:  now,
		Metadata:   metadata,
		Tags:       dedupeTags(o.Tags),
	}
	if c.retention > 0 {
		entry.ExpiresAt = now.Add(c.retention)
	}

	for _, tier := range c.tiers() {
		// Each tier gets its own copy; a timed out call may still be running.
		record := entry.Clone()
		err := c.callTier(ctx, "store", tier, func(ctx context.Context) error {
			return tier.Write(ctx, record)
		})
		if err == nil {
			return entry.ID, nil
		}
		c.fallThrough("store", tier, "error", err)
	}

	c.logger.Error().Str("agent_id", agentID).Int64("id", entry.ID).Msg("every memory tier rejected the write")
	return entry.ID, nil
}

// Retrieve returns entries of an agent, most recent first.
//
// An error, timeout or empty result at one tier repeats the query against the
// next. The terminal tier's answer is final, possibly empty.
//
// Example:
//
//	entries, err := client.Retrieve(ctx, "tech_mentor",
//	    core.WithKind(core.KindConversation),
//	    core.WithUserIDFilter("user_001"),
//	    core.WithLimit(10),
//	)
func (c *Client) Retrieve(ctx context.Context, agentID string, opts ...RetrieveOption) ([]*MemoryEntry, error) {
	o := applyRetrieveOptions(opts)
	if err := validateRequest(&retrieveRequest{
		AgentID:             agentID,
		Kind:                o.Kind,
		Limit:               o.Limit,
		ImportanceThreshold: o.ImportanceThreshold,
	}); err != nil {
		return nil, err
	}

	query := &storage.QueryOptions{
		AgentID:       agentID,
		UserID:        o.UserID,
		Kind:          string(o.Kind),
		MinImportance: o.ImportanceThreshold,
		Limit:         o.Limit,
	}

	tiers := c.tiers()
	for i, tier := range tiers {
		last := i == len(tiers)-1

		var found []*storage.Entry
		err := c.callTier(ctx, "retrieve", tier, func(ctx context.Context) error {
			var qerr error
			found, qerr = tier.Query(ctx, query)
			return qerr
		})
		if err != nil {
			if last {
				c.logger.Error().Err(err).Str("tier", tier.Name()).Msg("terminal memory tier failed")
				return []*MemoryEntry{}, nil
			}
			c.fallThrough("retrieve", tier, "error", err)
			continue
		}
		if len(found) == 0 && !last {
			c.fallThrough("retrieve", tier, "empty", nil)
			continue
		}
		return c.toMemoryEntries(found), nil
	}
	return []*MemoryEntry{}, nil
}

// Search returns entries whose content contains query, case-insensitively.
//
// Up to 1000 recent candidates are scanned; results keep recency order.
func (c *Client) Search(ctx context.Context, agentID, query string, opts ...SearchOption) ([]*MemoryEntry, error) {
	o := applySearchOptions(opts)
	if o.Limit < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be >= 0"}
	}

	candidates, err := c.Retrieve(ctx, agentID, WithKind(o.Kind), WithLimit(searchCandidates))
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	results := make([]*MemoryEntry, 0)
	for _, entry := range candidates {
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			results = append(results, entry)
			if o.Limit > 0 && len(results) >= o.Limit {
				break
			}
		}
	}
	return results, nil
}

// UpdateImportance patches the importance of an entry in the first tier that
// holds it. A missing entry is not an error.
func (c *Client) UpdateImportance(ctx context.Context, id int64, agentID string, importance float64) error {
	if err := validateRequest(&updateRequest{AgentID: agentID, Importance: importance}); err != nil {
		return err
	}

	for _, tier := range c.tiers() {
		err := c.callTier(ctx, "update_importance", tier, func(ctx context.Context) error {
			return tier.UpdateImportance(ctx, id, agentID, importance)
		})
		if err == nil {
			return nil
		}
		reason := "error"
		if errors.Is(err, storage.ErrNotFound) {
			reason = "not_found"
		}
		c.fallThrough("update_importance", tier, reason, err)
	}

	c.logger.Debug().Int64("id", id).Str("agent_id", agentID).Msg("no memory tier updated the entry")
	return nil
}

// DeleteOlderThan purges entries of an agent older than age from every tier
// and returns how many were removed. TTL-managed tiers remove nothing.
func (c *Client) DeleteOlderThan(ctx context.Context, agentID string, age time.Duration) (int, error) {
	if agentID == "" {
		return 0, &ValidationError{Field: "agent_id", Reason: "is required"}
	}
	if age < 0 {
		return 0, &ValidationError{Field: "age", Reason: "must be >= 0"}
	}

	cutoff := c.now().Add(-age)
	total := 0
	for _, tier := range c.tiers() {
		var removed int
		err := c.callTier(ctx, "delete_older_than", tier, func(ctx context.Context) error {
			var derr error
			removed, derr = tier.DeleteOlderThan(ctx, agentID, cutoff)
			return derr
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("tier", tier.Name()).Str("agent_id", agentID).Msg("delete older than failed")
			continue
		}
		total += removed
	}
	return total, nil
}

// Close closes every tier and returns the first error.
func (c *Client) Close() error {
	var first error
	for _, tier := range c.tiers() {
		if err := tier.Close(); err != nil && first == nil {
			first = NewMemoryError("Close", err)
		}
	}
	return first
}
