// Package core provides the agent memory client: a tiered store with
// fallback, and the context window assembled from it.
package core

import "time"

// Kind classifies a memory entry.
type Kind string

const (
	KindConversation      Kind = "conversation"
	KindUserStyle         Kind = "user_style"
	KindResponsePattern   Kind = "response_pattern"
	KindPersonalityUpdate Kind = "personality_update"
	KindTechnicalLearning Kind = "technical_learning"
	KindKnowledge         Kind = "knowledge"
	KindLearningInsights  Kind = "learning_insights"
	KindPreferences       Kind = "preferences"
)

// Kinds lists every valid kind.
var Kinds = []Kind{
	KindConversation,
	KindUserStyle,
	KindResponsePattern,
	KindPersonalityUpdate,
	KindTechnicalLearning,
	KindKnowledge,
	KindLearningInsights,
	KindPreferences,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// MemoryEntry represents a single stored memory of an agent.
//
// An empty UserID marks a persona-global entry shared across users.
type MemoryEntry struct {
	// ID is a snowflake ID assigned at write time.
	ID int64 `json:"id"`

	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id,omitempty"`

	Content string `json:"content"`
	Kind    Kind   `json:"kind"`

	// Importance is in [0, 1].
	Importance float64 `json:"importance"`

	// Timestamp is the UTC write time.
	Timestamp time.Time `json:"timestamp"`

	Metadata map[string]interface{} `json:"metadata"`
	Tags     []string               `json:"tags"`
}

// ContextWindow is the memory context gathered for one agent turn.
type ContextWindow struct {
	RecentConversations []*MemoryEntry `json:"recent_conversations"`
	RelevantKnowledge   []*MemoryEntry `json:"relevant_knowledge"`

	// UserPreferences is the metadata of the user's latest preferences entry.
	UserPreferences map[string]interface{} `json:"user_preferences"`

	// CurrentTopic is empty when no topic keyword matched.
	CurrentTopic string `json:"current_topic,omitempty"`
}
