package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/metrics"
)

// ModelFactory opens the chat model serving a model id.
type ModelFactory func(ctx context.Context, modelID string) (model.BaseChatModel, error)

// Generator answers llm.Requests through one compiled Chain per model. Replies
// are cached by model, messages and temperature; transient failures are
// retried with backoff.
type Generator struct {
	factory ModelFactory
	cache   *cache.Cache
	usage   *llm.Usage
	handler callbacks.Handler

	// MaxTokens caps completion length. Zero leaves the provider default.
	MaxTokens int
	// Retries bounds retries of transient failures. Zero means MaxRetries.
	Retries int

	mu     sync.Mutex
	chains map[string]*Chain
}

// NewGenerator creates a generator. c and usage may be nil.
func NewGenerator(factory ModelFactory, c *cache.Cache, usage *llm.Usage, logger *slog.Logger) *Generator {
	return &Generator{
		factory: factory,
		cache:   c,
		usage:   usage,
		handler: NewCallbackHandler(logger).Build(),
		chains:  make(map[string]*Chain),
	}
}

var _ llm.Generator = (*Generator)(nil)

func (g *Generator) retries() int {
	if g.Retries > 0 {
		return g.Retries
	}
	return MaxRetries
}

func (g *Generator) chain(ctx context.Context, modelID string) (*Chain, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.chains[modelID]; ok {
		return c, nil
	}
	chatModel, err := g.factory(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", modelID, err)
	}
	c, err := NewChain(ctx, modelID, chatModel, g.usage, g.MaxTokens, g.handler)
	if err != nil {
		return nil, err
	}
	g.chains[modelID] = c
	return c, nil
}

func cacheArgs(req llm.Request) map[string]any {
	args := map[string]any{
		"model":  req.Model,
		"system": req.System,
		"user":   req.User,
	}
	if req.Temperature != nil {
		args["temperature"] = *req.Temperature
	}
	return args
}

// Generate returns the model's reply to req.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Reply, error) {
	key := cacheArgs(req)
	var reply llm.Reply
	if !req.OverwriteCache && g.cache.Get(key, &reply) && reply.Content != "" {
		return reply, nil
	}

	c, err := g.chain(ctx, req.Model)
	if err != nil {
		return llm.Reply{}, err
	}

	reply, err = withRetry(ctx, req.Name, g.retries(), func() (llm.Reply, error) {
		r, dur, err := c.Invoke(ctx, req)
		metrics.LLMLatency.WithLabelValues(req.Model).Observe(dur.Seconds())
		return r, err
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues(req.Name, "error").Inc()
		return llm.Reply{}, fmt.Errorf("generate %s: %w", req.Name, err)
	}
	metrics.LLMCalls.WithLabelValues(req.Name, "ok").Inc()
	g.cache.Put(key, reply)
	return reply, nil
}
