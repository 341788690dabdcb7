package twin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/learning"
	"github.com/oceanbase/agentmem-go/pkg/llm"
)

// ErrUnknownAgent is returned for an agent ID missing from the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// Collaboration modes reported in responses.
const (
	ModeDirect       = "direct"
	ModeOrchestrated = "orchestrated"
)

// InvocationError reports a turn that produced no reply.
type InvocationError struct {
	AgentID string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("twin: invoke %s: %v", e.AgentID, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Request is one user turn addressed to an agent.
type Request struct {
	AgentID string
	UserID  string
	Message string

	// Context is appended to the message and stored with the conversation.
	Context map[string]interface{}
}

// Response is an agent's reply.
type Response struct {
	AgentID           string    `json:"agent_id"`
	Agent             string    `json:"agent"`
	Role              string    `json:"role"`
	Content           string    `json:"content"`
	Model             string    `json:"model"`
	CollaborationMode string    `json:"collaboration_mode"`
	Timestamp         time.Time `json:"timestamp"`

	// Learning is the outcome of learning from this turn.
	Learning *learning.LearnReport `json:"-"`
}

// AgentInfo is one row of the team roster.
type AgentInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Role          string   `json:"role"`
	Expertise     []string `json:"expertise"`
	MemoryEntries int      `json:"memory_entries"`
}

// Service answers user turns as the registry's personas.
type Service struct {
	registry *Registry
	engine   *learning.Engine
	memory   learning.MemoryStore
	provider llm.Provider
	logger   zerolog.Logger
	genOpts  []llm.GenerateOption
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithGenerateOptions sets options passed to every model call.
func WithGenerateOptions(opts ...llm.GenerateOption) Option {
	return func(s *Service) {
		s.genOpts = opts
	}
}

// NewService creates a twin service. A nil provider is allowed for read-only
// use such as Agents; every turn then fails with llm.ErrGeneration.
//
// Args:
//   - registry, engine, memory: required collaborators
//   - provider: language model used for replies, may be nil
//   - opts: logger and generation options
//
// Returns:
//   - *Service: twin service instance
//   - error: when a required collaborator is nil
//
// Example:
//
//	memory, _ := core.NewClient(inmemory.NewStore(nil))
//	engine, _ := learning.NewEngine(memory)
//	provider, _ := core.NewLLM(cfg.LLM)
//	svc, _ := twin.NewService(twin.DefaultRegistry(), engine, memory, provider)
//
//	resp, err := svc.Invoke(ctx, twin.Request{AgentID: "karti_database", UserID: "u1",
//	    Message: "How should I index this table?"})
func NewService(registry *Registry, engine *learning.Engine, memory learning.MemoryStore, provider llm.Provider, opts ...Option) (*Service, error) {
	if registry == nil || engine == nil || memory == nil {
		return nil, core.NewMemoryError("NewService", core.ErrInvalidConfig)
	}
	s := &Service{
		registry: registry,
		engine:   engine,
		memory:   memory,
		provider: provider,
		logger:   log.Logger.With().Str("component", "twin").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry returns the persona registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Invoke answers req as the addressed persona and learns from the exchange.
//
// A model failure returns an *InvocationError wrapping llm.ErrGeneration.
// Learning failures are logged and never fail the turn.
func (s *Service) Invoke(ctx context.Context, req Request) (*Response, error) {
	persona, ok := s.registry.Get(req.AgentID)
	if !ok {
		return nil, &InvocationError{AgentID: req.AgentID, Err: ErrUnknownAgent}
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, &core.ValidationError{Field: "message", Reason: "required"}
	}

	message := req.Message
	if len(req.Context) > 0 {
		data, err := json.MarshalIndent(req.Context, "", "  ")
		if err != nil {
			return nil, &core.ValidationError{Field: "context", Reason: err.Error()}
		}
		message = fmt.Sprintf("%s\n\nContext: %s", message, data)
	}

	return s.turn(ctx, persona, req.UserID, message, req.Context, ModeDirect)
}

// Coordinate hands message to the coordinator persona together with the
// team roster so it can route the work.
func (s *Service) Coordinate(ctx context.Context, userID, message string, extra map[string]interface{}) (*Response, error) {
	coordinator, ok := s.registry.Coordinator()
	if !ok {
		return nil, &InvocationError{AgentID: CoordinatorID, Err: ErrUnknownAgent}
	}
	if strings.TrimSpace(message) == "" {
		return nil, &core.ValidationError{Field: "message", Reason: "required"}
	}
	return s.turn(ctx, coordinator, userID, s.orchestrationPrompt(coordinator, message, extra), extra, ModeOrchestrated)
}

func (s *Service) turn(ctx context.Context, persona Persona, userID, message string, extra map[string]interface{}, mode string) (*Response, error) {
	logger := s.logger.With().Str("agent_id", persona.ID).Str("mode", mode).Logger()

	if s.provider == nil {
		return nil, &InvocationError{AgentID: persona.ID, Err: fmt.Errorf("%w: no provider configured", llm.ErrGeneration)}
	}

	system := s.engine.EnhancedSystemPrompt(ctx, persona.ID, persona.SystemPrompt, userID)
	reply, err := s.provider.GenerateWithMessages(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: message},
	}, s.genOpts...)
	if err != nil {
		if !errors.Is(err, llm.ErrGeneration) {
			err = fmt.Errorf("%w: %v", llm.ErrGeneration, err)
		}
		logger.Error().Err(err).Msg("generation failed")
		return nil, &InvocationError{AgentID: persona.ID, Err: err}
	}

	report := s.engine.LearnFromExchange(ctx, persona.ID, message, reply,
		learning.WithLearnUserID(userID),
		learning.WithExchangeContext(extra),
	)
	if report.Failed() {
		logger.Warn().Err(report.Err()).Msg("learning from turn incomplete")
	}
	logger.Info().Int("stored", report.StoredCount()).Msg("turn complete")

	return &Response{
		AgentID:           persona.ID,
		Agent:             persona.Name,
		Role:              persona.Role,
		Content:           reply,
		Model:             "twin-system-" + persona.ID,
		CollaborationMode: mode,
		Timestamp:         s.now(),
		Learning:          report,
	}, nil
}

func (s *Service) orchestrationPrompt(coordinator Persona, message string, extra map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "As the %s, analyze this request and determine the best approach:\n\n", coordinator.Name)
	fmt.Fprintf(&b, "User Request: %s\n\n", message)
	b.WriteString("Available Team Members:\n")
	for _, p := range s.registry.All() {
		if p.ID == coordinator.ID {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", p.Name, p.Role, strings.Join(p.Expertise, ", "))
	}

	contextText := "No additional context provided"
	if len(extra) > 0 {
		if data, err := json.Marshal(extra); err == nil {
			contextText = string(data)
		}
	}
	fmt.Fprintf(&b, "\nContext: %s\n\n", contextText)

	b.WriteString("Please:\n")
	b.WriteString("1. Analyze the request\n")
	b.WriteString("2. Identify which team member(s) should handle this\n")
	b.WriteString("3. Provide a coordinated response\n")
	b.WriteString("4. Suggest next steps if multiple agents need to collaborate\n\n")
	fmt.Fprintf(&b, "Respond as the %s coordinating the team.", coordinator.Name)
	return b.String()
}

// Agents lists the roster with each agent's stored conversation count.
func (s *Service) Agents(ctx context.Context) []AgentInfo {
	personas := s.registry.All()
	infos := make([]AgentInfo, 0, len(personas))
	for _, p := range personas {
		conversations, err := s.memory.Retrieve(ctx, p.ID,
			core.WithKind(core.KindConversation),
			core.WithLimit(0),
		)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent_id", p.ID).Msg("conversation count unavailable")
		}
		infos = append(infos, AgentInfo{
			ID:            p.ID,
			Name:          p.Name,
			Role:          p.Role,
			Expertise:     p.Expertise,
			MemoryEntries: len(conversations),
		})
	}
	return infos
}
