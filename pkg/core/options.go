package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

const (
	defaultImportance        = 0.5
	defaultRetrieveLimit     = 50
	defaultSearchLimit       = 10
	defaultConversationLimit = 10
	defaultKnowledgeLimit    = 5

	// searchCandidates bounds how many entries Search scans.
	searchCandidates = 1000

	// knowledgeThreshold is the minimum importance of context knowledge.
	knowledgeThreshold = 0.7

	// topicScanDepth is how many recent conversations feed topic detection.
	topicScanDepth = 3

	// DefaultTierTimeout bounds every single tier call.
	DefaultTierTimeout = 2 * time.Second

	// DefaultRetention is the expiry hint attached to new entries.
	DefaultRetention = 365 * 24 * time.Hour
)

// DefaultTopicKeywords are scanned in order; the first hit wins.
var DefaultTopicKeywords = []string{"mobile", "database", "ai", "cloud", "frontend", "backend"}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSemanticTier sets the first tier, usually the chromem vector store.
func WithSemanticTier(b storage.Backend) ClientOption {
	return func(c *Client) {
		c.semantic = b
	}
}

// WithDurableTier sets the tier tried after the semantic one.
func WithDurableTier(b storage.Backend) ClientOption {
	return func(c *Client) {
		c.durable = b
	}
}

// WithLogger sets the logger for tier transitions.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTierTimeout bounds each tier call. Non-positive values are ignored.
func WithTierTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.tierTimeout = d
		}
	}
}

// WithRetention sets the expiry hint for new entries. Zero disables the hint.
func WithRetention(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.retention = d
		}
	}
}

// WithMetrics registers tier counters on reg.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.metricsRegisterer = reg
	}
}

// WithTopicKeywords replaces the topic keyword list.
func WithTopicKeywords(keywords []string) ClientOption {
	return func(c *Client) {
		c.topicKeywords = append([]string(nil), keywords...)
	}
}

// WithNodeID sets the snowflake node used for IDs, for multi-writer setups.
func WithNodeID(node int64) ClientOption {
	return func(c *Client) {
		c.nodeID = node
	}
}

// WithClock overrides the source of entry timestamps. The returned time is
// converted to UTC.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = func() time.Time { return now().UTC() }
		}
	}
}

// StoreOption is a function type for configuring Store operations.
type StoreOption func(*StoreOptions)

// StoreOptions contains configuration options for Store operations.
type StoreOptions struct {
	// UserID scopes the entry to a user. Empty means persona-global.
	UserID string

	// Importance defaults to 0.5.
	Importance float64

	Metadata map[string]interface{}
	Tags     []string
}

// WithUserID sets the user ID for Store operations.
//
// Example:
//
//	id, _ := client.Store(ctx, "tech_mentor", "User: hi", core.KindConversation,
//	    core.WithUserID("user_001"))
func WithUserID(userID string) StoreOption {
	return func(opts *StoreOptions) {
		opts.UserID = userID
	}
}

// WithImportance sets the importance for Store operations.
func WithImportance(importance float64) StoreOption {
	return func(opts *StoreOptions) {
		opts.Importance = importance
	}
}

// WithMetadata sets metadata for Store operations.
//
// Values must be strings, numbers, booleans, nil, or slices and string-keyed
// maps of those.
//
// Example:
//
//	id, _ := client.Store(ctx, "tech_mentor", "prefers dark mode", core.KindPreferences,
//	    core.WithMetadata(map[string]interface{}{
//	        "theme": "dark",
//	        "font_size": 14,
//	    }),
//	)
func WithMetadata(metadata map[string]interface{}) StoreOption {
	return func(opts *StoreOptions) {
		opts.Metadata = metadata
	}
}

// WithTags sets tags for Store operations. Duplicates are dropped.
func WithTags(tags ...string) StoreOption {
	return func(opts *StoreOptions) {
		opts.Tags = tags
	}
}

// RetrieveOption is a function type for configuring Retrieve operations.
type RetrieveOption func(*RetrieveOptions)

// RetrieveOptions contains configuration options for Retrieve operations.
type RetrieveOptions struct {
	Kind   Kind
	UserID string

	// Limit defaults to 50.
	Limit int

	// ImportanceThreshold is the inclusive minimum importance.
	ImportanceThreshold float64
}

// WithKind filters Retrieve by kind.
func WithKind(kind Kind) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Kind = kind
	}
}

// WithUserIDFilter filters Retrieve by user.
func WithUserIDFilter(userID string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.UserID = userID
	}
}

// WithLimit caps the number of retrieved entries.
//
// Example:
//
//	entries, _ := client.Retrieve(ctx, "tech_mentor", core.WithLimit(5))
func WithLimit(limit int) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Limit = limit
	}
}

// WithImportanceThreshold keeps entries with importance >= threshold.
func WithImportanceThreshold(threshold float64) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.ImportanceThreshold = threshold
	}
}

// SearchOption is a function type for configuring Search operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for Search operations.
type SearchOptions struct {
	Kind Kind

	// Limit defaults to 10.
	Limit int
}

// WithSearchKind restricts Search to one kind.
func WithSearchKind(kind Kind) SearchOption {
	return func(opts *SearchOptions) {
		opts.Kind = kind
	}
}

// WithSearchLimit caps the number of search results.
func WithSearchLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// ContextOption is a function type for configuring GetContextWindow.
type ContextOption func(*ContextOptions)

// ContextOptions contains configuration options for GetContextWindow.
type ContextOptions struct {
	UserID string

	// ConversationLimit defaults to 10.
	ConversationLimit int

	// KnowledgeLimit defaults to 5.
	KnowledgeLimit int
}

// WithContextUserID scopes conversations and preferences to a user.
func WithContextUserID(userID string) ContextOption {
	return func(opts *ContextOptions) {
		opts.UserID = userID
	}
}

// WithConversationLimit caps recent conversations in the window.
func WithConversationLimit(limit int) ContextOption {
	return func(opts *ContextOptions) {
		opts.ConversationLimit = limit
	}
}

// WithKnowledgeLimit caps knowledge entries in the window.
func WithKnowledgeLimit(limit int) ContextOption {
	return func(opts *ContextOptions) {
		opts.KnowledgeLimit = limit
	}
}

func applyStoreOptions(opts []StoreOption) *StoreOptions {
	o := &StoreOptions{Importance: defaultImportance}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func applyRetrieveOptions(opts []RetrieveOption) *RetrieveOptions {
	o := &RetrieveOptions{Limit: defaultRetrieveLimit}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func applySearchOptions(opts []SearchOption) *SearchOptions {
	o := &SearchOptions{Limit: defaultSearchLimit}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func applyContextOptions(opts []ContextOption) *ContextOptions {
	o := &ContextOptions{
		ConversationLimit: defaultConversationLimit,
		KnowledgeLimit:    defaultKnowledgeLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
