package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
)

// CallbackHandler logs chat model calls made through a Chain.
type CallbackHandler struct {
	logger     *slog.Logger
	startTimes map[string]time.Time
	mu         sync.Mutex
}

// NewCallbackHandler creates a handler writing to logger, or to the default
// logger when nil.
func NewCallbackHandler(logger *slog.Logger) *CallbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackHandler{logger: logger, startTimes: make(map[string]time.Time)}
}

// Build creates an Eino-compatible callback handler.
func (h *CallbackHandler) Build() callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			if info.Component != components.ComponentOfChatModel {
				return ctx
			}
			h.mu.Lock()
			h.startTimes[info.Name] = time.Now()
			h.mu.Unlock()

			attrs := []any{"node", info.Name}
			if in := model.ConvCallbackInput(input); in != nil {
				attrs = append(attrs, "messages", len(in.Messages))
				if in.Config != nil {
					attrs = append(attrs, "model", in.Config.Model)
				}
			}
			h.logger.Debug("model call started", attrs...)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if info.Component != components.ComponentOfChatModel {
				return ctx
			}
			attrs := []any{"node", info.Name, "duration", h.elapsed(info.Name)}
			if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
				attrs = append(attrs,
					"prompt_tokens", out.TokenUsage.PromptTokens,
					"completion_tokens", out.TokenUsage.CompletionTokens)
			}
			h.logger.Debug("model call finished", attrs...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			h.logger.Warn("chain node failed", "node", info.Name, "component", string(info.Component),
				"duration", h.elapsed(info.Name), "error", err)
			return ctx
		}).
		Build()
}

// elapsed guards against a missing start time, which parallel invokes of
// the same node can cause.
func (h *CallbackHandler) elapsed(name string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	start, ok := h.startTimes[name]
	if !ok {
		return 0
	}
	delete(h.startTimes, name)
	return time.Since(start)
}
