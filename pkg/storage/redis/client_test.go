package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/storage"
	redisStore "github.com/oceanbase/agentmem-go/pkg/storage/redis"
)

func setupRedisTest(t *testing.T) (*redisStore.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := redisStore.NewClient(&redisStore.Config{Addr: mr.Addr(), KeyPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestRedisClient_WriteAndQuery(t *testing.T) {
	client, mr := setupRedisTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		require.NoError(t, client.Write(ctx, &storage.Entry{
			ID:         int64(i),
			AgentID:    "agent",
			UserID:     "u1",
			Kind:       "conversation",
			Content:    fmt.Sprintf("message %d", i),
			Importance: 0.7,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			ExpiresAt:  now.Add(365 * 24 * time.Hour),
			Tags:       []string{},
			Metadata:   map[string]interface{}{"channel": "chat"},
		}))
	}

	assert.True(t, mr.Exists("test:entry:1"))
	assert.True(t, mr.Exists("test:agent:agent"))
	assert.Greater(t, mr.TTL("test:entry:1"), 364*24*time.Hour)

	results, err := client.Query(ctx, &storage.QueryOptions{AgentID: "agent", Kind: "conversation", Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "message 3", results[0].Content)
	assert.Equal(t, "message 2", results[1].Content)
	assert.Equal(t, map[string]interface{}{"channel": "chat"}, results[0].Metadata)

	results, err = client.Query(ctx, &storage.QueryOptions{AgentID: "agent", UserID: "someone"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRedisClient_ExpiredEntriesArePruned(t *testing.T) {
	client, mr := setupRedisTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, client.Write(ctx, &storage.Entry{
		ID: 1, AgentID: "agent", Kind: "knowledge", Content: "short lived",
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, client.Write(ctx, &storage.Entry{
		ID: 2, AgentID: "agent", Kind: "knowledge", Content: "no hint", CreatedAt: now.Add(time.Second),
	}))

	mr.FastForward(2 * time.Minute)

	results, err := client.Query(ctx, &storage.QueryOptions{AgentID: "agent"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "no hint", results[0].Content)

	members, err := mr.ZMembers("test:agent:agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, members)
}

func TestRedisClient_UpdateImportanceKeepsTTL(t *testing.T) {
	client, mr := setupRedisTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, client.Write(ctx, &storage.Entry{
		ID: 9, AgentID: "agent", Kind: "knowledge", Content: "c", Importance: 0.5,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, client.UpdateImportance(ctx, 9, "agent", 0.95))
	assert.Greater(t, mr.TTL("test:entry:9"), time.Duration(0))

	results, err := client.Query(ctx, &storage.QueryOptions{AgentID: "agent"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.95, results[0].Importance, 1e-9)

	assert.ErrorIs(t, client.UpdateImportance(ctx, 9, "other", 0.1), storage.ErrNotFound)
	assert.ErrorIs(t, client.UpdateImportance(ctx, 10, "agent", 0.1), storage.ErrNotFound)
}

func TestRedisClient_MalformedRecordIsSkipped(t *testing.T) {
	client, mr := setupRedisTest(t)
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, &storage.Entry{
		ID: 1, AgentID: "agent", Kind: "knowledge", Content: "good", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, mr.Set("test:entry:2", "{broken"))
	_, err := mr.ZAdd("test:agent:agent", float64(time.Now().UnixNano()), "2")
	require.NoError(t, err)

	results, err := client.Query(ctx, &storage.QueryOptions{AgentID: "agent"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].Content)
}

func TestRedisClient_DeleteOlderThanIsNoop(t *testing.T) {
	client, _ := setupRedisTest(t)
	removed, err := client.DeleteOlderThan(context.Background(), "agent", time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisClient_UnreachableServer(t *testing.T) {
	_, err := redisStore.NewClient(&redisStore.Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
