// Package learning turns conversational exchanges into derived agent
// memories and folds them back into enhanced system prompts.
//
// Learning never fails a turn: every write is isolated and its outcome is
// reported in a LearnReport instead of an error.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/intelligence"
)

const (
	conversationImportance      = 0.7
	userStyleImportance         = 0.8
	responsePatternImportance   = 0.6
	personalityImportance       = 0.9
	technicalLearningImportance = 0.8

	promptConversations = 3
	promptKnowledge     = 2
)

// MemoryStore is the part of the memory client the engine writes through.
// *core.Client satisfies it.
type MemoryStore interface {
	Store(ctx context.Context, agentID, content string, kind core.Kind, opts ...core.StoreOption) (int64, error)
	Retrieve(ctx context.Context, agentID string, opts ...core.RetrieveOption) ([]*core.MemoryEntry, error)
	GetContextWindow(ctx context.Context, agentID string, opts ...core.ContextOption) (*core.ContextWindow, error)
}

// Engine learns agent personalities from exchanges.
//
// Personalities are copy-on-write: the cache only ever holds values nobody
// mutates, so concurrent learners for one agent lose updates (last write
// wins) but never corrupt state. WithSerializedUpdates upgrades this to a
// per-agent lock.
type Engine struct {
	store    MemoryStore
	analyzer *intelligence.Analyzer
	cache    PersonalityCache
	ownCache *RistrettoCache
	logger   zerolog.Logger

	serialized bool
	locks      sync.Map

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAnalyzer sets the style analyzer, for example one built from a custom
// vocabulary.
func WithAnalyzer(a *intelligence.Analyzer) Option {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithPersonalityCache replaces the default ristretto cache.
func WithPersonalityCache(c PersonalityCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSerializedUpdates makes personality updates of one agent run one at a
// time, so no learning event is lost.
func WithSerializedUpdates() Option {
	return func(e *Engine) {
		e.serialized = true
	}
}

// WithClock overrides the time source stamped on personalities.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a learning engine writing through store.
//
// Args:
//   - store: memory client the derived entries are written to (required)
//   - opts: analyzer, personality cache, logger, clock, serialized updates
//
// Returns:
//   - *Engine: learning engine; Close releases its default cache
//   - error: when store is nil or the default cache cannot be built
//
// Example:
//
//	client, _ := core.NewClient(inmemory.NewStore(nil))
//	engine, _ := learning.NewEngine(client)
//	defer engine.Close()
//
//	engine.LearnFromExchange(ctx, "tech_mentor", "How do I scale my API?",
//	    "Put a load balancer in front of stateless servers.",
//	    learning.WithLearnUserID("user_001"))
func NewEngine(store MemoryStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, core.NewMemoryError("NewEngine", core.ErrInvalidConfig)
	}

	e := &Engine{
		store:  store,
		logger: log.Logger.With().Str("component", "learning_engine").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.analyzer == nil {
		e.analyzer = intelligence.NewDefaultAnalyzer()
	}
	if e.cache == nil {
		cache, err := NewRistrettoCache(DefaultCacheSize)
		if err != nil {
			return nil, core.NewMemoryError("NewEngine", err)
		}
		e.cache = cache
		e.ownCache = cache
	}
	return e, nil
}

// Close releases the default cache. A cache passed in with
// WithPersonalityCache is left to its owner.
func (e *Engine) Close() {
	if e.ownCache != nil {
		e.ownCache.Close()
	}
}

// Analyzer returns the style analyzer used by the engine.
func (e *Engine) Analyzer() *intelligence.Analyzer {
	return e.analyzer
}

// LearnOption configures one learning event.
type LearnOption func(*learnOptions)

type learnOptions struct {
	userID  string
	context map[string]interface{}
}

// WithLearnUserID attributes the exchange to a user. Without it no user_style
// entry is written.
func WithLearnUserID(userID string) LearnOption {
	return func(o *learnOptions) {
		o.userID = userID
	}
}

// WithExchangeContext attaches metadata to the stored conversation entry.
// Values outside the metadata value set are converted to their JSON form.
func WithExchangeContext(ctx map[string]interface{}) LearnOption {
	return func(o *learnOptions) {
		o.context = ctx
	}
}

// LearnFromExchange derives and stores memories from one exchange.
//
// Writes happen in a fixed order: the conversation itself, the user's style
// (with a user only), a response pattern, the personality snapshot, technical
// terms (when any occur), and knowledge snippets found in the response. A
// failed write is recorded in the report and does not stop the others.
func (e *Engine) LearnFromExchange(ctx context.Context, agentID, userMessage, agentResponse string, opts ...LearnOption) *LearnReport {
	o := &learnOptions{}
	for _, opt := range opts {
		opt(o)
	}
	report := newLearnReport(agentID)
	logger := e.logger.With().Str("agent_id", agentID).Logger()
	logger.Debug().Str("user_id", o.userID).Msg("learning from exchange")

	id, err := e.store.Store(ctx, agentID,
		fmt.Sprintf("User: %s\nAgent: %s", userMessage, agentResponse),
		core.KindConversation,
		core.WithUserID(o.userID),
		core.WithImportance(conversationImportance),
		core.WithMetadata(contextMetadata(o.context)),
	)
	report.record(core.KindConversation, id, err)

	var userStyle *intelligence.StyleAnalysis
	if o.userID != "" {
		userStyle = e.analyzer.Analyze(userMessage)
		e.storeJSON(ctx, report, agentID, core.KindUserStyle, userStyle,
			core.WithUserID(o.userID),
			core.WithImportance(userStyleImportance),
			core.WithMetadata(map[string]interface{}{"analysis_type": "communication_style"}),
		)
	}

	effectiveness := EffectivenessScore(userMessage, agentResponse)
	responseWords := len(strings.Fields(agentResponse))
	e.storeJSON(ctx, report, agentID, core.KindResponsePattern, &responsePatternRecord{
		UserStyle:             userStyle,
		ResponseEffectiveness: effectiveness,
		ResponseLength:        responseWords,
		TechnicalTermsUsed:    countTerms(agentResponse),
	},
		core.WithUserID(o.userID),
		core.WithImportance(responsePatternImportance),
	)

	id, err = e.updatePersonality(ctx, agentID, o.userID, exchange{
		formality:     e.analyzer.Formality(userMessage),
		phrases:       extractPhrases(userMessage),
		terms:         extractTerms(userMessage),
		effectiveness: effectiveness,
		responseWords: responseWords,
		expertise:     e.analyzer.TechnicalCategories(agentResponse),
	})
	report.record(core.KindPersonalityUpdate, id, err)

	userTerms := extractTerms(userMessage)
	responseTerms := extractTerms(agentResponse)
	if len(userTerms) > 0 || len(responseTerms) > 0 {
		e.storeJSON(ctx, report, agentID, core.KindTechnicalLearning, &technicalLearningRecord{
			UserTechTerms:     userTerms,
			ResponseTechTerms: responseTerms,
			TechDepth:         technicalDepth(userMessage, agentResponse),
		}, core.WithImportance(technicalLearningImportance))
	}

	e.storeKnowledge(ctx, report, agentID, extractKnowledge(agentResponse))

	if report.Failed() {
		logger.Warn().Err(report.Err()).Msg("learning incomplete")
	}
	return report
}

func (e *Engine) storeJSON(ctx context.Context, report *LearnReport, agentID string, kind core.Kind, payload interface{}, opts ...core.StoreOption) {
	data, err := json.Marshal(payload)
	if err != nil {
		report.record(kind, 0, err)
		return
	}
	id, err := e.store.Store(ctx, agentID, string(data), kind, opts...)
	report.record(kind, id, err)
}

// storeKnowledge writes snippets one at a time in extraction order.
func (e *Engine) storeKnowledge(ctx context.Context, report *LearnReport, agentID string, snippets []knowledgeSnippet) {
	for _, s := range snippets {
		id, err := e.store.Store(ctx, agentID, s.content, core.KindKnowledge, s.storeOptions()...)
		report.record(core.KindKnowledge, id, err)
	}
}

// contextMetadata maps exchange context onto JSON-shaped values, which the
// store accepts. A value that cannot be encoded is kept as its %v text.
func contextMetadata(exchangeCtx map[string]interface{}) map[string]interface{} {
	if len(exchangeCtx) == 0 {
		return nil
	}
	metadata := make(map[string]interface{}, len(exchangeCtx))
	for key, value := range exchangeCtx {
		data, err := json.Marshal(value)
		if err != nil {
			metadata[key] = fmt.Sprintf("%v", value)
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			metadata[key] = string(data)
			continue
		}
		metadata[key] = decoded
	}
	return metadata
}

// updatePersonality folds ex into the agent's personality, publishes the new
// value to the cache and persists its snapshot.
func (e *Engine) updatePersonality(ctx context.Context, agentID, userID string, ex exchange) (int64, error) {
	if e.serialized {
		mu := e.agentLock(agentID)
		mu.Lock()
		defer mu.Unlock()
	}

	p, ok := e.PersonalityFor(ctx, agentID)
	if !ok {
		p = newPersonality(agentID)
	}
	p.apply(ex, e.now())

	content, err := p.snapshot()
	if err != nil {
		return 0, err
	}
	e.cache.Set(agentID, p)

	return e.store.Store(ctx, agentID, content, core.KindPersonalityUpdate,
		core.WithUserID(userID),
		core.WithImportance(personalityImportance),
	)
}

func (e *Engine) agentLock(agentID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(agentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// PersonalityFor returns a copy of the agent's current personality.
//
// The cache is consulted first; on a miss the most recent personality_update
// entry is decoded and cached. It reports false when the agent has none or
// the stored snapshot cannot be decoded.
func (e *Engine) PersonalityFor(ctx context.Context, agentID string) (*Personality, bool) {
	if p, ok := e.cache.Get(agentID); ok && p != nil {
		return p.Clone(), true
	}

	entries, err := e.store.Retrieve(ctx, agentID,
		core.WithKind(core.KindPersonalityUpdate),
		core.WithLimit(1),
	)
	if err != nil {
		e.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to load personality")
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}

	p, err := parseSnapshot(agentID, entries[0].Content, entries[0].Timestamp)
	if err != nil {
		e.logger.Error().Err(err).Str("agent_id", agentID).Int64("entry_id", entries[0].ID).
			Msg("failed to load personality")
		return nil, false
	}
	e.cache.Set(agentID, p)
	return p.Clone(), true
}

// EnhancedSystemPrompt extends basePrompt with what the agent has learned.
//
// Sections are appended only when they have content: the learned personality,
// up to three recent conversations, up to two knowledge snippets and the
// current topic. With nothing learned the base prompt is returned unchanged.
func (e *Engine) EnhancedSystemPrompt(ctx context.Context, agentID, basePrompt, userID string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if p, ok := e.PersonalityFor(ctx, agentID); ok {
		style, _ := json.Marshal(p.CommunicationStyle)
		prefs, _ := json.Marshal(p.TechnicalPreferences)
		b.WriteString("\n\n## Your Learned Personality:\n")
		fmt.Fprintf(&b, "Communication Style: %s\n", style)
		fmt.Fprintf(&b, "Technical Preferences: %s\n", prefs)
		if phrases := p.RecentPhrases(promptLearnedPhrases); len(phrases) > 0 {
			fmt.Fprintf(&b, "Common phrases you use: %s\n", strings.Join(phrases, ", "))
		}
	}

	window, err := e.store.GetContextWindow(ctx, agentID, core.WithContextUserID(userID))
	if err != nil {
		e.logger.Warn().Err(err).Str("agent_id", agentID).Msg("context window unavailable")
		return b.String()
	}

	writeSnippets(&b, "Recent Context", window.RecentConversations, promptConversations)
	writeSnippets(&b, "Relevant Knowledge", window.RelevantKnowledge, promptKnowledge)

	if window.CurrentTopic != "" {
		fmt.Fprintf(&b, "\n\n## Current Topic: %s\n", window.CurrentTopic)
	}
	return b.String()
}

func writeSnippets(b *strings.Builder, title string, entries []*core.MemoryEntry, max int) {
	if len(entries) == 0 {
		return
	}
	if len(entries) > max {
		entries = entries[:max]
	}
	fmt.Fprintf(b, "\n\n## %s:\n", title)
	for _, entry := range entries {
		fmt.Fprintf(b, "- %s\n", truncate(entry.Content, promptSnippetChars))
	}
}
