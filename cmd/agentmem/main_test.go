package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentmem.yaml")
	content := fmt.Sprintf(`
durable:
  provider: sqlite
  config:
    db_path: %s
llm:
  provider: openai
`, filepath.Join(dir, "memories.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, "", "analyze", "Could you please explain the API architecture?")
	require.NoError(t, err)

	var analysis map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Contains(t, analysis, "formality_score")
	assert.Contains(t, analysis, "technical_depth")
}

func TestAnalyzeCommand_Compare(t *testing.T) {
	out, err := run(t, "", "analyze", "hey, cool stuff lol", "--compare", "Could you please kindly review the document?")
	require.NoError(t, err)
	assert.Contains(t, out, `"comparison"`)
	assert.Contains(t, out, `"formality_difference"`)
}

func TestLearnThenInspect(t *testing.T) {
	config := writeConfig(t)

	out, err := run(t, "", "--config", config, "learn",
		"--agent", "karti_database",
		"--user", "u1",
		"--message", "How do I speed up my database query?",
		"--response", "Add an index on the filtered column and check the query plan.",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "conversation")
	assert.Contains(t, out, "personality_update")

	// A fresh process sees what the previous one persisted.
	out, err = run(t, "", "--config", config, "personality", "--agent", "karti_database")
	require.NoError(t, err)
	assert.Contains(t, out, `"communication_style"`)

	out, err = run(t, "", "--config", config, "search", "index", "--agent", "karti_database")
	require.NoError(t, err)
	assert.Contains(t, out, "conversation")

	out, err = run(t, "", "--config", config, "prompt", "--agent", "karti_database", "--user", "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "You are Karti"))
	assert.Contains(t, out, "## Your Learned Personality:")

	out, err = run(t, "", "--config", config, "insights", "--agent", "karti_database", "--user", "u1", "--store")
	require.NoError(t, err)
	assert.Contains(t, out, `"conversation_count": 1`)

	out, err = run(t, "", "--config", config, "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "karti_database")
	assert.Contains(t, out, "team_coordinator")

	out, err = run(t, "", "--config", config, "prune", "--agent", "karti_database", "--older-than", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
}

func TestPersonalityCommand_Unknown(t *testing.T) {
	out, err := run(t, "", "--config", writeConfig(t), "personality", "--agent", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "no personality learned for ghost\n", out)
}

func TestChatCommand_RequiresModel(t *testing.T) {
	_, err := run(t, "hello\n", "--config", writeConfig(t), "chat", "--agent", "niyas_ai")
	assert.Error(t, err, "chat without an api key")
}

func TestRootCommand_BadFlags(t *testing.T) {
	_, err := run(t, "", "--log-level", "loud", "analyze", "hi")
	assert.Error(t, err)

	_, err = run(t, "", "--config", "agentmem.toml", "agents")
	assert.Error(t, err)

	_, err = run(t, "", "learn", "--agent", "a")
	assert.Error(t, err, "message and response are required")
}
