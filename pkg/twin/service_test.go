package twin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/learning"
	"github.com/oceanbase/agentmem-go/pkg/llm"
	"github.com/oceanbase/agentmem-go/pkg/storage/inmemory"
	"github.com/oceanbase/agentmem-go/pkg/twin"
)

// fakeLLM records every conversation and answers with reply or err.
type fakeLLM struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (f *fakeLLM) GenerateWithMessages(_ context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	return f.reply, f.err
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) last() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newService(t *testing.T, provider llm.Provider) (*twin.Service, *core.Client) {
	t.Helper()

	memory, err := core.NewClient(inmemory.NewStore(nil), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = memory.Close() })

	engine, err := learning.NewEngine(memory, learning.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	svc, err := twin.NewService(twin.DefaultRegistry(), engine, memory, provider, twin.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return svc, memory
}

func TestService_InvokeLearnsFromTurn(t *testing.T) {
	provider := &fakeLLM{reply: "Add a composite index on (user_id, created_at)."}
	svc, memory := newService(t, provider)
	ctx := context.Background()

	resp, err := svc.Invoke(ctx, twin.Request{
		AgentID: "karti_database",
		UserID:  "u1",
		Message: "My database query is slow",
	})
	require.NoError(t, err)

	assert.Equal(t, "Karti", resp.Agent)
	assert.Equal(t, "Database Developer", resp.Role)
	assert.Equal(t, "twin-system-karti_database", resp.Model)
	assert.Equal(t, twin.ModeDirect, resp.CollaborationMode)
	assert.Equal(t, provider.reply, resp.Content)
	require.NotNil(t, resp.Learning)
	assert.False(t, resp.Learning.Failed())

	messages := provider.last()
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.True(t, strings.HasPrefix(messages[0].Content, "You are Karti"))
	assert.Equal(t, "My database query is slow", messages[1].Content)

	conversations, err := memory.Retrieve(ctx, "karti_database", core.WithKind(core.KindConversation))
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "User: My database query is slow\nAgent: "+provider.reply, conversations[0].Content)

	// The next turn sees what was learned.
	_, err = svc.Invoke(ctx, twin.Request{AgentID: "karti_database", UserID: "u1", Message: "And for writes?"})
	require.NoError(t, err)
	system := provider.last()[0].Content
	assert.Contains(t, system, "## Your Learned Personality:")
	assert.Contains(t, system, "## Recent Context:")
	assert.Contains(t, system, "## Current Topic: database")
}

func TestService_InvokeAppendsContext(t *testing.T) {
	provider := &fakeLLM{reply: "ok"}
	svc, memory := newService(t, provider)
	ctx := context.Background()

	_, err := svc.Invoke(ctx, twin.Request{
		AgentID: "utsav_fullstack",
		Message: "Scale the service",
		Context: map[string]interface{}{"region": "us-east-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Scale the service\n\nContext: {\n  \"region\": \"us-east-1\"\n}", provider.last()[1].Content)

	conversations, err := memory.Retrieve(ctx, "utsav_fullstack", core.WithKind(core.KindConversation))
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "us-east-1", conversations[0].Metadata["region"])
}

func TestService_InvokeGenerationFailure(t *testing.T) {
	provider := &fakeLLM{err: errors.New("connection refused")}
	svc, memory := newService(t, provider)
	ctx := context.Background()

	_, err := svc.Invoke(ctx, twin.Request{AgentID: "niyas_ai", Message: "Train a model"})

	var invErr *twin.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "niyas_ai", invErr.AgentID)
	assert.ErrorIs(t, err, llm.ErrGeneration)

	conversations, err := memory.Retrieve(ctx, "niyas_ai")
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestService_InvokeRejectsBadRequests(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{reply: "ok"})
	ctx := context.Background()

	_, err := svc.Invoke(ctx, twin.Request{AgentID: "nobody", Message: "hi"})
	assert.ErrorIs(t, err, twin.ErrUnknownAgent)

	_, err = svc.Invoke(ctx, twin.Request{AgentID: "niyas_ai", Message: "  "})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message", verr.Field)
}

func TestService_Coordinate(t *testing.T) {
	provider := &fakeLLM{reply: "Karti should take this."}
	svc, _ := newService(t, provider)

	resp, err := svc.Coordinate(context.Background(), "u1", "Our app crashes when the DB is slow", nil)
	require.NoError(t, err)

	assert.Equal(t, twin.CoordinatorID, resp.AgentID)
	assert.Equal(t, twin.ModeOrchestrated, resp.CollaborationMode)

	prompt := provider.last()[1].Content
	assert.Contains(t, prompt, "User Request: Our app crashes when the DB is slow")
	assert.Contains(t, prompt, "- Karti (Database Developer): PostgreSQL, MongoDB, Redis, Data Modeling\n")
	assert.Contains(t, prompt, "- Nayeem (Mobile App Developer): iOS, Android, React Native, App Store\n")
	assert.NotContains(t, prompt, "- Team Coordinator (")
	assert.Contains(t, prompt, "Context: No additional context provided")
}

func TestService_Agents(t *testing.T) {
	svc, _ := newService(t, &fakeLLM{reply: "sure"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Invoke(ctx, twin.Request{AgentID: "owner_ceo", Message: "Should we expand?"})
		require.NoError(t, err)
	}

	agents := svc.Agents(ctx)
	require.Len(t, agents, 6)
	counts := make(map[string]int)
	for _, a := range agents {
		counts[a.ID] = a.MemoryEntries
	}
	assert.Equal(t, 2, counts["owner_ceo"])
	assert.Equal(t, 0, counts["niyas_ai"])
	assert.Equal(t, "nayeem_mobile", agents[0].ID)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := twin.NewService(twin.DefaultRegistry(), nil, nil, &fakeLLM{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestService_WithoutProvider(t *testing.T) {
	svc, _ := newService(t, nil)

	assert.Len(t, svc.Agents(context.Background()), 6)

	_, err := svc.Invoke(context.Background(), twin.Request{AgentID: "niyas_ai", Message: "hi"})
	assert.ErrorIs(t, err, llm.ErrGeneration)
}

func TestRegistry(t *testing.T) {
	r := twin.DefaultRegistry()
	assert.Len(t, r.All(), 6)

	coordinator, ok := r.Coordinator()
	require.True(t, ok)
	assert.Equal(t, "Orchestrator", coordinator.Role)

	_, err := twin.NewRegistry([]twin.Persona{
		{ID: "a", Name: "A", Role: "r", SystemPrompt: "p"},
		{ID: "a", Name: "B", Role: "r", SystemPrompt: "p"},
	}, "")
	assert.Error(t, err)

	_, err = twin.NewRegistry([]twin.Persona{{ID: "a", Name: "A", Role: "r"}}, "")
	assert.Error(t, err, "missing system prompt")

	_, err = twin.NewRegistry([]twin.Persona{{ID: "a", Name: "A", Role: "r", SystemPrompt: "p"}}, "boss")
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
personas:
  - id: rustacean
    name: Ferris
    role: Systems Developer
    expertise: [Rust, WebAssembly]
    system_prompt: You are Ferris.
  - id: team_coordinator
    name: Lead
    role: Orchestrator
    system_prompt: You route work.
`), 0o600))

	r, err := twin.LoadRegistry(path)
	require.NoError(t, err)

	p, ok := r.Get("rustacean")
	require.True(t, ok)
	assert.Equal(t, []string{"Rust", "WebAssembly"}, p.Expertise)

	coordinator, ok := r.Coordinator()
	require.True(t, ok)
	assert.Equal(t, "Lead", coordinator.Name)

	_, err = twin.LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
