package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueries(t *testing.T) {
	tests := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{`["a", "b"]`, []string{"a", "b"}, false},
		{`['salt price', 'salt tax']`, []string{"salt price", "salt tax"}, false},
		{`[]`, []string{}, false},
		{``, nil, true},
		{`salt price`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseQueries(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolResult(t *testing.T) {
	assert.Equal(t, noToolResult, toolResult(nil))
	assert.Equal(t, failedToolResult, toolResult([]*SearchRound{{Turn: 0}}))
	assert.Equal(t, "pages", toolResult([]*SearchRound{{result: &search.Result{Text: "pages"}}}))
}

func TestSearchAgent_FormatRound(t *testing.T) {
	env := newTestEnv(t, config.ModeReport, newScriptedGen())
	a := NewSearchAgent(env, env.Mode.Search.Execute)
	r := &SearchRound{
		Turn:    2,
		Fields:  map[string]string{"observation": "seen", "think": "plan"},
		Queries: []string{"q1"},
	}

	full := a.formatRound(r, true)
	assert.Contains(t, full, "<turn=2>\n<observation>\nseen\n</observation>\n")
	assert.Contains(t, full, "<planning_and_think>\nplan\n</planning_and_think>")
	assert.Contains(t, full, "<current_turn_search_querys>\n[\"q1\"]\n</current_turn_search_querys>")
	assert.True(t, len(full) > len(a.roundThink(r)))
	assert.NotContains(t, a.roundThink(r), "q1")
}

func TestSearchAgent_StopsAtMaxTurn(t *testing.T) {
	reply := "<observation>\nmore\n</observation>\n<current_turn_search_querys>\n[\"again\"]\n</current_turn_search_querys>"
	gen := newScriptedGen().on("search/agent", reply, reply, reply)
	env := newTestEnv(t, config.ModeReport, gen)
	browser := &fakeBrowser{}
	env.Browser = browser
	cfg := *env.Mode.Search.Execute
	cfg.MaxTurn = 3

	turns, history, err := NewSearchAgent(env, &cfg).Run(context.Background(), SearchInput{Question: "q", StartIndex: 4})
	require.NoError(t, err)
	require.Len(t, browser.calls, 3)
	assert.Equal(t, []int{4, 5, 6}, []int{browser.calls[0].startIndex, browser.calls[1].startIndex, browser.calls[2].startIndex})
	// The last round has no follow-up observation.
	assert.Len(t, turns, 2)
	assert.Contains(t, history, `"turn":2`)
}

func TestSearchAgent_BrowserFailure(t *testing.T) {
	gen := newScriptedGen().on("search/agent",
		"<current_turn_search_querys>\n[\"x\"]\n</current_turn_search_querys>",
		"<observation>\nthe search failed\n</observation>\n<current_turn_search_querys>\n[]\n</current_turn_search_querys>")
	env := newTestEnv(t, config.ModeReport, gen)
	env.Browser = &fakeBrowser{err: errors.New("backend down")}

	turns, _, err := NewSearchAgent(env, env.Mode.Search.Execute).Run(context.Background(), SearchInput{Question: "q", StartIndex: 1})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].Pages)
	assert.Equal(t, "the search failed", turns[0].Observation)

	reqs := gen.requests("search/agent")
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].User, failedToolResult)
}

func TestSearchAgent_RetriesUnparsableReply(t *testing.T) {
	gen := newScriptedGen().on("search/agent",
		"I will search for salt.",
		"<current_turn_search_querys>\n[]\n</current_turn_search_querys>")
	env := newTestEnv(t, config.ModeReport, gen)
	env.Browser = &fakeBrowser{}

	turns, _, err := NewSearchAgent(env, env.Mode.Search.Execute).Run(context.Background(), SearchInput{Question: "q"})
	require.NoError(t, err)
	assert.Empty(t, turns)
	reqs := gen.requests("search/agent")
	require.Len(t, reqs, 2)
	assert.True(t, reqs[1].OverwriteCache)
}
