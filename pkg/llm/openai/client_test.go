package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbase/agentmem-go/pkg/llm"
	openaiLLM "github.com/oceanbase/agentmem-go/pkg/llm/openai"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func newChatServer(t *testing.T, status int, reply string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "boom", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]interface{}{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GenerateWithMessages(t *testing.T) {
	var seen chatRequest
	srv := newChatServer(t, http.StatusOK, "Use an index.", &seen)

	client, err := openaiLLM.NewClient(&openaiLLM.Config{APIKey: "test", BaseURL: srv.URL, MaxTokens: 200})
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a database mentor."},
		{Role: llm.RoleUser, Content: "My query is slow"},
	}, llm.WithTemperature(0.2))
	require.NoError(t, err)

	assert.Equal(t, "Use an index.", reply)
	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, llm.RoleSystem, seen.Messages[0].Role)
	assert.Equal(t, 200, seen.MaxTokens)
	assert.InDelta(t, 0.2, seen.Temperature, 1e-6)
}

func TestClient_GenerateFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := newChatServer(t, http.StatusInternalServerError, "", nil)
		client, err := openaiLLM.NewClient(&openaiLLM.Config{APIKey: "test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, llm.ErrGeneration)
	})

	t.Run("empty reply", func(t *testing.T) {
		srv := newChatServer(t, http.StatusOK, "  ", nil)
		client, err := openaiLLM.NewClient(&openaiLLM.Config{APIKey: "test", BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, llm.ErrGeneration)
	})
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := openaiLLM.NewClient(&openaiLLM.Config{})
	assert.Error(t, err)
}
