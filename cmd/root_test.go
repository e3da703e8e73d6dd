package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the root command against a fresh data directory and
// returns what the command printed through cobra.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	viper.Set("data.dir", t.TempDir())

	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return b.String(), err
}

func TestRootCmd(t *testing.T) {
	output, err := runCmd(t, "--help")
	assert.NoError(t, err)
	assert.Contains(t, output, "Recursive long-form writing server")
	assert.Contains(t, output, "Usage:")
	assert.Contains(t, output, "Commands:")
	for _, name := range []string{"serve", "generate", "history", "watch", "stop", "delete", "reload", "mcp", "policy", "cache"} {
		assert.Contains(t, output, name)
	}
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", GetVersion())
}

func TestCacheStats_EmptyIndex(t *testing.T) {
	output, err := runCmd(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, output, "llm:      0")
	assert.Contains(t, output, "total:    0")
}

func TestCachePrune_RejectsNegativeAge(t *testing.T) {
	_, err := runCmd(t, "cache", "prune", "--older-than", "-1h")
	assert.Error(t, err)
}

func TestPolicyList_IncludesEmbeddedPolicy(t *testing.T) {
	output, err := runCmd(t, "policy", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "Loaded 1 policy module(s)")
	assert.Contains(t, output, "admission")
}

func TestPolicyTest(t *testing.T) {
	output, err := runCmd(t, "policy", "test", "--kind", "story", "--model", "gpt-4o", "--key", "openai=sk-test", "A fable about a fox")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ allowed")

	output, err = runCmd(t, "policy", "test", "--kind", "poem", "--model", "gpt-4o", "--key", "openai=sk-test", "A fable about a fox")
	require.NoError(t, err)
	assert.Contains(t, output, "✗ denied")
	assert.Contains(t, output, `unknown task type "poem"`)
}

func TestPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.rego")
	bad := filepath.Join(dir, "bad.rego")
	require.NoError(t, os.WriteFile(good, []byte("package quill.admission\n\nimport rego.v1\n\ndeny contains \"no\" if { input.kind == \"poem\" }\n"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("package quill.admission\n\ndeny contains if {\n"), 0o644))

	output, err := runCmd(t, "policy", "check", good)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ "+good)

	output, err = runCmd(t, "policy", "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, output, "✗ "+bad)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestPolicyDecisions_DeniedCount(t *testing.T) {
	output, err := runCmd(t, "policy", "decisions")
	require.NoError(t, err)
	assert.Contains(t, output, "0 request(s) denied")
}

func TestAPIClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/stop-task/story-1":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"status":"ok","message":"Task story-1 has been stopped"}`))
		case "/api/delete-task/story-2":
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"error","error":"Task not found"}`))
		case "/api/reload":
			_, _ = w.Write([]byte(`{"status":"ok","message":"Task storage reloaded","taskCount":3}`))
		case "/api/status/story-3":
			_, _ = w.Write([]byte(`{"taskId":"story-3","status":"running","elapsedTime":12.5,"model":"gpt-4o"}`))
		case "/api/task-graph/story-3":
			_, _ = w.Write([]byte(`{"taskId":"story-3","taskGraph":[` +
				`{"id":"","goal":"A fable","task_type":"write","status":"DOING"},` +
				`null,` +
				`{"id":"1","goal":"Opening","task_type":"write","status":"FINISH"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	c, err := newAPIClient(ts.URL + "/")
	require.NoError(t, err)
	ctx := context.Background()

	msg, err := c.stop(ctx, "story-1")
	require.NoError(t, err)
	assert.Equal(t, "Task story-1 has been stopped", msg)

	_, err = c.delete(ctx, "story-2")
	require.Error(t, err)
	assert.Equal(t, "server: Task not found", err.Error())

	msg, err = c.reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Task storage reloaded", msg)

	st, err := c.status(ctx, "story-3")
	require.NoError(t, err)
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, "gpt-4o", st.Model)

	tree, err := c.taskGraph(ctx, "story-3")
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, "A fable", tree.Goal)
	require.Len(t, tree.SubTasks, 1)
	assert.Equal(t, "Opening", tree.SubTasks[0].Goal)

	_, err = newAPIClient("localhost:5001")
	assert.Error(t, err)

	output, err := runCmd(t, "status", "story-3", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, output, "story-3")
	assert.Contains(t, output, "1/2 tasks")
	assert.Contains(t, output, "Opening")
}
