package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		// Nil error
		{
			name:      "nil error",
			err:       nil,
			wantRetry: false,
		},

		// Malformed output
		{
			name:      "unmarshal error",
			err:       errors.New("json: cannot unmarshal string into Go value"),
			wantRetry: true,
		},
		{
			name:      "invalid character error",
			err:       errors.New("invalid character 'x' looking for beginning of value"),
			wantRetry: true,
		},

		// Rate limit errors - OpenAI format
		{
			name:      "openai rate limit",
			err:       errors.New("Rate limit exceeded. Please retry after 20s"),
			wantRetry: true,
		},
		{
			name:      "http 429 error",
			err:       errors.New("HTTP 429: Too Many Requests"),
			wantRetry: true,
		},

		// Rate limit errors - Anthropic format
		{
			name:      "anthropic rate limit",
			err:       errors.New("rate_limit_error: Number of request tokens has exceeded your per-minute rate limit"),
			wantRetry: true,
		},
		{
			name:      "anthropic overloaded",
			err:       errors.New("overloaded_error: Overloaded"),
			wantRetry: true,
		},

		// Rate limit errors - Google/Gemini format
		{
			name:      "gemini quota exceeded",
			err:       errors.New("quota exceeded for aiplatform.googleapis.com"),
			wantRetry: true,
		},
		{
			name:      "google resource exhausted",
			err:       errors.New("RESOURCE_EXHAUSTED: Quota exceeded"),
			wantRetry: true,
		},

		// Network errors
		{
			name:      "timeout error",
			err:       errors.New("context deadline exceeded (Client.Timeout exceeded)"),
			wantRetry: true,
		},
		{
			name:      "connection reset",
			err:       errors.New("read tcp: connection reset by peer"),
			wantRetry: true,
		},
		{
			name:      "temporary network error",
			err:       errors.New("temporary failure in name resolution"),
			wantRetry: true,
		},
		{
			name:      "bad gateway",
			err:       errors.New("status 502 bad gateway"),
			wantRetry: true,
		},

		// Non-retryable errors
		{
			name:      "authentication error",
			err:       errors.New("invalid API key provided"),
			wantRetry: false,
		},
		{
			name:      "permission denied",
			err:       errors.New("permission denied: you do not have access to this model"),
			wantRetry: false,
		},
		{
			name:      "model not found",
			err:       errors.New("model 'gpt-5' does not exist"),
			wantRetry: false,
		},
		{
			name:      "content policy violation",
			err:       errors.New("content policy violation detected"),
			wantRetry: false,
		},
		{
			name:      "generic error",
			err:       errors.New("something went wrong"),
			wantRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryableError(tt.err)
			if got != tt.wantRetry {
				t.Errorf("isRetryableError(%q) = %v, want %v", tt.err, got, tt.wantRetry)
			}
		})
	}
}

func TestIsRetryableError_CaseInsensitive(t *testing.T) {
	tests := []struct {
		err       error
		wantRetry bool
	}{
		{errors.New("RATE LIMIT EXCEEDED"), true},
		{errors.New("Rate Limit Exceeded"), true},
		{errors.New("TIMEOUT"), true},
		{errors.New("Timeout"), true},
		{errors.New("UNMARSHAL ERROR"), true},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := isRetryableError(tt.err)
			if got != tt.wantRetry {
				t.Errorf("isRetryableError(%q) = %v, want %v (case insensitive)", tt.err, got, tt.wantRetry)
			}
		})
	}
}

func TestRetryConstants(t *testing.T) {
	if MaxRetries < 1 || MaxRetries > 5 {
		t.Errorf("MaxRetries = %d, want between 1 and 5", MaxRetries)
	}

	if RetryBaseDelay < 100*1e6 || RetryBaseDelay > 5000*1e6 { // 100ms to 5s in nanoseconds
		t.Errorf("RetryBaseDelay = %v, want between 100ms and 5s", RetryBaseDelay)
	}
}

// scriptedModel replies with queued results and records what it was sent.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	errs    []error
	seen    [][]*schema.Message
	opts    [][]model.Option
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, input)
	m.opts = append(m.opts, opts)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.replies) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func newTestGenerator(m *scriptedModel, c *cache.Cache) *Generator {
	return NewGenerator(func(context.Context, string) (model.BaseChatModel, error) { return m, nil }, c, &llm.Usage{}, nil)
}

func TestGenerator_MessagesAndCache(t *testing.T) {
	reply := schema.AssistantMessage("<result>\nchapter one\n</result>", nil)
	reply.ReasoningContent = "thinking"
	m := &scriptedModel{replies: []*schema.Message{reply}}
	g := newTestGenerator(m, cache.New(cache.NameLLM, cache.NewMemoryBackend()))

	temp := float32(0.2)
	req := llm.Request{Name: "story/writer", Model: "gpt-4o", System: "be brief", User: "write", Temperature: &temp}
	got, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "<result>\nchapter one\n</result>", got.Content)
	assert.Equal(t, "thinking", got.Reason)

	require.Len(t, m.seen, 1)
	require.Len(t, m.seen[0], 2)
	assert.Equal(t, schema.System, m.seen[0][0].Role)
	assert.Equal(t, schema.User, m.seen[0][1].Role)
	assert.Len(t, m.opts[0], 1, "temperature option")

	again, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, m.calls(), "second call should come from cache")

	req.OverwriteCache = true
	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls(), "overwrite must reach the model")
}

func TestGenerator_SkipsEmptySystem(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("ok", nil)}}
	g := newTestGenerator(m, nil)

	_, err := g.Generate(context.Background(), llm.Request{Name: "p", Model: "gpt-4o", System: "  ", User: "hello"})
	require.NoError(t, err)
	require.Len(t, m.seen[0], 1)
	assert.Equal(t, schema.User, m.seen[0][0].Role)
	assert.Empty(t, m.opts[0])
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	m := &scriptedModel{
		errs:    []error{errors.New("HTTP 429: Too Many Requests"), nil},
		replies: []*schema.Message{schema.AssistantMessage("done", nil)},
	}
	g := newTestGenerator(m, nil)

	got, err := g.Generate(context.Background(), llm.Request{Name: "p", Model: "gpt-4o", User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "done", got.Content)
	assert.Equal(t, 2, m.calls())
}

func TestGenerator_PermanentError(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("invalid API key provided")}}
	g := newTestGenerator(m, nil)

	_, err := g.Generate(context.Background(), llm.Request{Name: "p", Model: "gpt-4o", User: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
	assert.Equal(t, 1, m.calls())
}

func TestGenerator_FactoryError(t *testing.T) {
	g := NewGenerator(func(context.Context, string) (model.BaseChatModel, error) {
		return nil, errors.New("no key for provider")
	}, nil, nil, nil)
	_, err := g.Generate(context.Background(), llm.Request{Name: "p", Model: "claude-x", User: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open model claude-x")
}

func TestGenerator_EmptyPrompt(t *testing.T) {
	m := &scriptedModel{}
	g := newTestGenerator(m, nil)
	_, err := g.Generate(context.Background(), llm.Request{Name: "p", Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, 0, m.calls())
}
