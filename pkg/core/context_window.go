package core

import (
	"context"
	"strings"
)

// GetContextWindow gathers the memory context for one agent turn.
//
// It retrieves the user's recent conversations, the agent's high-importance
// knowledge, and the user's latest preferences, then detects the current
// topic from the most recent conversations.
//
// Example:
//
//	window, err := client.GetContextWindow(ctx, "tech_mentor",
//	    core.WithContextUserID("user_001"),
//	)
//	if window.CurrentTopic != "" {
//	    fmt.Println("talking about", window.CurrentTopic)
//	}
func (c *Client) GetContextWindow(ctx context.Context, agentID string, opts ...ContextOption) (*ContextWindow, error) {
	o := applyContextOptions(opts)

	conversations, err := c.Retrieve(ctx, agentID,
		WithKind(KindConversation),
		WithUserIDFilter(o.UserID),
		WithLimit(o.ConversationLimit),
	)
	if err != nil {
		return nil, err
	}

	// Knowledge is persona-global, so it is not filtered by user.
	knowledge, err := c.Retrieve(ctx, agentID,
		WithKind(KindKnowledge),
		WithLimit(o.KnowledgeLimit),
		WithImportanceThreshold(knowledgeThreshold),
	)
	if err != nil {
		return nil, err
	}

	preferences, err := c.userPreferences(ctx, agentID, o.UserID)
	if err != nil {
		return nil, err
	}

	return &ContextWindow{
		RecentConversations: conversations,
		RelevantKnowledge:   knowledge,
		UserPreferences:     preferences,
		CurrentTopic:        c.detectTopic(conversations),
	}, nil
}

func (c *Client) userPreferences(ctx context.Context, agentID, userID string) (map[string]interface{}, error) {
	if userID == "" {
		return map[string]interface{}{}, nil
	}
	entries, err := c.Retrieve(ctx, agentID,
		WithKind(KindPreferences),
		WithUserIDFilter(userID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Metadata == nil {
		return map[string]interface{}{}, nil
	}
	return entries[0].Metadata, nil
}

// detectTopic returns the first keyword found in the most recent conversations.
func (c *Client) detectTopic(conversations []*MemoryEntry) string {
	n := len(conversations)
	if n > topicScanDepth {
		n = topicScanDepth
	}
	parts := make([]string, 0, n)
	for _, entry := range conversations[:n] {
		parts = append(parts, entry.Content)
	}
	text := strings.ToLower(strings.Join(parts, " "))

	for _, keyword := range c.topicKeywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return keyword
		}
	}
	return ""
}
