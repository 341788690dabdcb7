package postgres_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/storage"
	postgresStore "github.com/oceanbase/agentmem-go/pkg/storage/postgres"
)

func setupPostgresTest(t *testing.T) (*postgresStore.Client, string) {
	// Load .env file from project root
	_ = godotenv.Load(filepath.Join("..", "..", "..", ".env"))

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	portStr := os.Getenv("POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: invalid POSTGRES_PORT: %s", portStr)
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("Skipping PostgreSQL test: POSTGRES_PASSWORD not set")
	}

	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "agentmem_test"
	}

	store, err := postgresStore.NewClient(&postgresStore.Config{
		Host:      host,
		Port:      port,
		User:      user,
		Password:  password,
		DBName:    dbName,
		TableName: "test_agent_memories",
		SSLMode:   "disable",
	})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: failed to connect: %v", err)
	}

	agentID := fmt.Sprintf("agent_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = store.DeleteOlderThan(context.Background(), agentID, time.Now().Add(time.Hour))
		_ = store.Close()
	})

	return store, agentID
}

func TestPostgresClient_WriteAndQuery(t *testing.T) {
	store, agentID := setupPostgresTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &storage.Entry{
		ID:         now.UnixNano(),
		AgentID:    agentID,
		UserID:     "u1",
		Kind:       "user_style",
		Content:    `{"formality_score":0.5}`,
		Importance: 0.8,
		CreatedAt:  now,
		Metadata:   map[string]interface{}{"analysis_type": "communication_style"},
		Tags:       []string{},
	}
	require.NoError(t, store.Write(ctx, entry))

	results, err := store.Query(ctx, &storage.QueryOptions{AgentID: agentID, Kind: "user_style", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entry.Content, results[0].Content)
	assert.Equal(t, entry.Metadata, results[0].Metadata)
	assert.InDelta(t, 0.8, results[0].Importance, 1e-9)
}

func TestPostgresClient_UpdateAndDelete(t *testing.T) {
	store, agentID := setupPostgresTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	id := now.UnixNano()

	require.NoError(t, store.Write(ctx, &storage.Entry{
		ID: id, AgentID: agentID, Kind: "knowledge", Content: "old", Importance: 0.5,
		CreatedAt: now.Add(-48 * time.Hour),
	}))

	require.NoError(t, store.UpdateImportance(ctx, id, agentID, 0.75))
	assert.ErrorIs(t, store.UpdateImportance(ctx, id+1, agentID, 0.75), storage.ErrNotFound)

	removed, err := store.DeleteOlderThan(ctx, agentID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
