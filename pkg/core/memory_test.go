package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/storage"
	"github.com/oceanbase/agentmem-go/pkg/storage/inmemory"
)

// fakeTier is a scriptable storage.Backend.
type fakeTier struct {
	name     string
	failWith error
	delay    time.Duration
	empty    bool

	mu     sync.Mutex
	writes []*storage.Entry
	closed bool
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) wait() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeTier) Write(_ context.Context, e *storage.Entry) error {
	f.wait()
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, e)
	return nil
}

func (f *fakeTier) Query(_ context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	f.wait()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.empty {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Entry
	for _, e := range f.writes {
		if storage.Matches(e, opts) {
			out = append(out, e.Clone())
		}
	}
	storage.SortRecentFirst(out)
	return storage.Truncate(out, opts.Limit), nil
}

func (f *fakeTier) UpdateImportance(_ context.Context, id int64, _ string, importance float64) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.writes {
		if e.ID == id {
			e.Importance = importance
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeTier) DeleteOlderThan(_ context.Context, _ string, _ time.Time) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return 0, nil
}

func (f *fakeTier) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// tickingClock advances one millisecond per reading so write order is
// reflected in timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Now().UTC()
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestClient(t *testing.T, opts ...core.ClientOption) (*core.Client, *inmemory.Store) {
	t.Helper()
	terminal := inmemory.NewStore(nil)
	opts = append([]core.ClientOption{core.WithLogger(zerolog.Nop()), core.WithClock(tickingClock())}, opts...)
	client, err := core.NewClient(terminal, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, terminal
}

func TestClient_StoreRetrieveRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Store(ctx, "tech_mentor", "Kubernetes pods restart on OOM", core.KindKnowledge,
		core.WithUserID("u1"),
		core.WithImportance(0.8),
		core.WithTags("k8s", "ops", "k8s"),
		core.WithMetadata(map[string]interface{}{"source": "chat", "turn": 3}),
	)
	require.NoError(t, err)
	assert.NotZero(t, id)

	entries, err := client.Retrieve(ctx, "tech_mentor", core.WithKind(core.KindKnowledge), core.WithUserIDFilter("u1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Kubernetes pods restart on OOM", got.Content)
	assert.Equal(t, core.KindKnowledge, got.Kind)
	assert.Equal(t, []string{"k8s", "ops"}, got.Tags)
	assert.InDelta(t, 0.8, got.Importance, 1e-9)
	assert.Equal(t, float64(3), got.Metadata["turn"])
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, time.UTC, got.Timestamp.Location())
}

func TestClient_StoreValidation(t *testing.T) {
	client, terminal := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		agentID string
		kind    core.Kind
		opts    []core.StoreOption
		field   string
	}{
		{name: "missing agent", agentID: "", kind: core.KindConversation, field: "agent_id"},
		{name: "unknown kind", agentID: "a", kind: core.Kind("gossip"), field: "kind"},
		{name: "importance above one", agentID: "a", kind: core.KindKnowledge, opts: []core.StoreOption{core.WithImportance(1.5)}, field: "importance"},
		{name: "negative importance", agentID: "a", kind: core.KindKnowledge, opts: []core.StoreOption{core.WithImportance(-0.1)}, field: "importance"},
		{
			name: "unsupported metadata", agentID: "a", kind: core.KindKnowledge,
			opts:  []core.StoreOption{core.WithMetadata(map[string]interface{}{"when": time.Now()})},
			field: "metadata.when",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Store(ctx, tt.agentID, "content", tt.kind, tt.opts...)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
	assert.Zero(t, terminal.Len("a"))
}

func TestClient_StoreFallsThroughFailingTiers(t *testing.T) {
	semantic := &fakeTier{name: "semantic", failWith: errors.New("index down")}
	durable := &fakeTier{name: "durable", failWith: storage.ErrUnavailable}
	client, terminal := newTestClient(t, core.WithSemanticTier(semantic), core.WithDurableTier(durable))
	ctx := context.Background()

	id, err := client.Store(ctx, "a", "hello", core.KindConversation)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 1, terminal.Len("a"))

	entries, err := client.Retrieve(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
}

func TestClient_StoreStopsAtFirstHealthyTier(t *testing.T) {
	durable := &fakeTier{name: "durable"}
	client, terminal := newTestClient(t, core.WithDurableTier(durable))

	_, err := client.Store(context.Background(), "a", "hello", core.KindConversation)
	require.NoError(t, err)
	assert.Equal(t, 1, durable.count())
	assert.Zero(t, terminal.Len("a"))
	assert.False(t, durable.writes[0].ExpiresAt.IsZero())
}

func TestClient_TierTimeoutFallsThrough(t *testing.T) {
	slow := &fakeTier{name: "slow", delay: 500 * time.Millisecond}
	client, terminal := newTestClient(t, core.WithDurableTier(slow), core.WithTierTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := client.Store(context.Background(), "a", "hello", core.KindConversation)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, 1, terminal.Len("a"))
}

func TestClient_RetrieveEmptyTierFallsThrough(t *testing.T) {
	durable := &fakeTier{name: "durable", empty: true}
	terminal := inmemory.NewStore(nil)
	require.NoError(t, terminal.Write(context.Background(), &storage.Entry{
		ID: 1, AgentID: "a", Kind: "conversation", Content: "cached", CreatedAt: time.Now().UTC(),
	}))

	client, err := core.NewClient(terminal, core.WithDurableTier(durable), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	entries, err := client.Retrieve(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cached", entries[0].Content)
}

func TestClient_RetrieveValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		opts  []core.RetrieveOption
		field string
	}{
		{name: "negative limit", opts: []core.RetrieveOption{core.WithLimit(-1)}, field: "limit"},
		{name: "threshold above one", opts: []core.RetrieveOption{core.WithImportanceThreshold(1.2)}, field: "importance_threshold"},
		{name: "unknown kind", opts: []core.RetrieveOption{core.WithKind("gossip")}, field: "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Retrieve(ctx, "a", tt.opts...)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestClient_RetrieveOrderingAndFilters(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := client.Store(ctx, "a", fmt.Sprintf("m%d", i), core.KindConversation,
			core.WithImportance(float64(i)/10), core.WithUserID("u1"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := client.Store(ctx, "a", "other user", core.KindConversation, core.WithUserID("u2"))
	require.NoError(t, err)

	entries, err := client.Retrieve(ctx, "a", core.WithUserIDFilter("u1"))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.Timestamp.Equal(cur.Timestamp) {
			assert.Less(t, prev.ID, cur.ID)
		} else {
			assert.True(t, prev.Timestamp.After(cur.Timestamp))
		}
	}

	entries, err = client.Retrieve(ctx, "a", core.WithUserIDFilter("u1"), core.WithImportanceThreshold(0.3))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = client.Retrieve(ctx, "a", core.WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = client.Retrieve(ctx, "unknown_agent")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_TerminalTierKeepsNewestThousand(t *testing.T) {
	client, terminal := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 1005; i++ {
		_, err := client.Store(ctx, "a", fmt.Sprintf("m%d", i), core.KindConversation)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, terminal.Len("a"))

	entries, err := client.Retrieve(ctx, "a", core.WithLimit(0))
	require.NoError(t, err)
	require.Len(t, entries, 1000)
	for _, e := range entries {
		assert.NotContains(t, []string{"m0", "m1", "m2", "m3", "m4"}, e.Content)
	}
}

func TestClient_Search(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	for _, content := range []string{"Postgres tuning", "React hooks", "postgres replication", "Docker tips"} {
		_, err := client.Store(ctx, "a", content, core.KindKnowledge)
		require.NoError(t, err)
	}
	_, err := client.Store(ctx, "a", "POSTGRES chat", core.KindConversation)
	require.NoError(t, err)

	results, err := client.Search(ctx, "a", "postgres", core.WithSearchKind(core.KindKnowledge))
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = client.Search(ctx, "a", "PostGres")
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = client.Search(ctx, "a", "postgres", core.WithSearchLimit(1))
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = client.Search(ctx, "a", "mongodb")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_UpdateImportance(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Store(ctx, "a", "fact", core.KindKnowledge, core.WithImportance(0.2))
	require.NoError(t, err)

	require.NoError(t, client.UpdateImportance(ctx, id, "a", 0.95))
	entries, err := client.Retrieve(ctx, "a", core.WithImportanceThreshold(0.9))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.NoError(t, client.UpdateImportance(ctx, 12345, "a", 0.5))

	var verr *core.ValidationError
	assert.ErrorAs(t, client.UpdateImportance(ctx, id, "a", 2), &verr)
}

func TestClient_UpdateImportanceFallsThrough(t *testing.T) {
	durable := &fakeTier{name: "durable", failWith: errors.New("down")}
	terminal := inmemory.NewStore(nil)
	require.NoError(t, terminal.Write(context.Background(), &storage.Entry{
		ID: 42, AgentID: "a", Kind: "knowledge", Importance: 0.1, CreatedAt: time.Now().UTC(),
	}))
	client, err := core.NewClient(terminal, core.WithDurableTier(durable), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, client.UpdateImportance(context.Background(), 42, "a", 0.7))
	entries, err := terminal.Query(context.Background(), &storage.QueryOptions{AgentID: "a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.7, entries[0].Importance, 1e-9)
}

func TestClient_DeleteOlderThan(t *testing.T) {
	terminal := inmemory.NewStore(nil)
	now := time.Now().UTC()
	ctx := context.Background()
	require.NoError(t, terminal.Write(ctx, &storage.Entry{ID: 1, AgentID: "a", Kind: "conversation", CreatedAt: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, terminal.Write(ctx, &storage.Entry{ID: 2, AgentID: "a", Kind: "conversation", CreatedAt: now}))

	durable := &fakeTier{name: "durable", failWith: errors.New("down")}
	client, err := core.NewClient(terminal, core.WithDurableTier(durable), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	removed, err := client.DeleteOlderThan(ctx, "a", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, terminal.Len("a"))

	_, err = client.DeleteOlderThan(ctx, "a", -time.Hour)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClient_CloseClosesEveryTier(t *testing.T) {
	durable := &fakeTier{name: "durable"}
	client, err := core.NewClient(inmemory.NewStore(nil), core.WithDurableTier(durable), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	assert.True(t, durable.closed)
}

func TestClient_MetricsCountFallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	durable := &fakeTier{name: "durable", failWith: errors.New("down")}
	client, _ := newTestClient(t, core.WithDurableTier(durable), core.WithMetrics(reg))

	_, err := client.Store(context.Background(), "a", "hello", core.KindConversation)
	require.NoError(t, err)

	expected := `
# HELP agentmem_tier_fallbacks_total Calls that fell through past a tier
# TYPE agentmem_tier_fallbacks_total counter
agentmem_tier_fallbacks_total{operation="store",tier="durable"} 1
# HELP agentmem_tier_operations_total Memory tier calls by operation, tier and result
# TYPE agentmem_tier_operations_total counter
agentmem_tier_operations_total{operation="store",result="error",tier="durable"} 1
agentmem_tier_operations_total{operation="store",result="ok",tier="inmemory"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"agentmem_tier_fallbacks_total", "agentmem_tier_operations_total"))

	// A second client on the same registry reuses the collectors.
	_, err = core.NewClient(inmemory.NewStore(nil), core.WithMetrics(reg), core.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
}

func TestClient_BatchStore(t *testing.T) {
	client, terminal := newTestClient(t)

	result := client.BatchStore(context.Background(), "a", []core.BatchStoreItem{
		{Content: "one", Kind: core.KindKnowledge},
		{Content: "two", Kind: core.Kind("bogus")},
		{Content: "three", Kind: core.KindKnowledge, Options: []core.StoreOption{core.WithImportance(0.9)}},
	})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.StoredCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Zero(t, result.IDs[1])
	assert.NotZero(t, result.IDs[0])
	assert.Equal(t, 2, terminal.Len("a"))
}

func TestNewClient_RequiresTerminalTier(t *testing.T) {
	_, err := core.NewClient(nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
