/*
Package core provides the model call pipeline shared by every agent.
*/
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/josephgoksu/quill/internal/llm"
)

// modelInput carries the messages and per-call options into the model node.
type modelInput struct {
	messages []*schema.Message
	opts     []model.Option
}

// Chain is a compiled pipeline for one chat model: Messages -> Model -> Reply.
type Chain struct {
	chain   compose.Runnable[llm.Request, llm.Reply]
	name    string
	handler callbacks.Handler
}

// NewChain creates the pipeline for chatModel. usage may be nil. maxTokens
// of zero leaves the provider default.
func NewChain(
	ctx context.Context,
	name string,
	chatModel model.BaseChatModel,
	usage *llm.Usage,
	maxTokens int,
	handler callbacks.Handler,
) (*Chain, error) {

	messagesFunc := func(ctx context.Context, req llm.Request) (modelInput, error) {
		if strings.TrimSpace(req.User) == "" {
			return modelInput{}, fmt.Errorf("empty prompt for %s", req.Name)
		}
		var msgs []*schema.Message
		if strings.TrimSpace(req.System) != "" {
			msgs = append(msgs, schema.SystemMessage(req.System))
		}
		msgs = append(msgs, schema.UserMessage(req.User))

		var opts []model.Option
		if req.Temperature != nil {
			opts = append(opts, model.WithTemperature(*req.Temperature))
		}
		if maxTokens > 0 {
			opts = append(opts, model.WithMaxTokens(maxTokens))
		}
		return modelInput{messages: msgs, opts: opts}, nil
	}

	// BaseChatModel is wrapped in a lambda so models without tool support fit.
	modelFunc := func(ctx context.Context, in modelInput) (*schema.Message, error) {
		msg, err := chatModel.Generate(ctx, in.messages, in.opts...)
		if err != nil {
			return nil, err
		}
		var prompt strings.Builder
		for _, m := range in.messages {
			prompt.WriteString(m.Content)
		}
		usage.Record(name, prompt.String(), msg)
		return msg, nil
	}

	replyFunc := func(ctx context.Context, msg *schema.Message) (llm.Reply, error) {
		if msg == nil {
			return llm.Reply{}, fmt.Errorf("model returned no message")
		}
		return llm.Reply{Content: msg.Content, Reason: msg.ReasoningContent}, nil
	}

	graph := compose.NewGraph[llm.Request, llm.Reply]()

	_ = graph.AddLambdaNode("messages", compose.InvokableLambda(messagesFunc))
	_ = graph.AddLambdaNode("model", compose.InvokableLambda(modelFunc))
	_ = graph.AddLambdaNode("reply", compose.InvokableLambda(replyFunc))

	_ = graph.AddEdge(compose.START, "messages")
	_ = graph.AddEdge("messages", "model")
	_ = graph.AddEdge("model", "reply")
	_ = graph.AddEdge("reply", compose.END)

	compiled, err := graph.Compile(ctx, compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile chain: %w", err)
	}

	return &Chain{chain: compiled, name: name, handler: handler}, nil
}

// Invoke runs the chain once and reports how long it took.
func (c *Chain) Invoke(ctx context.Context, req llm.Request) (llm.Reply, time.Duration, error) {
	start := time.Now()
	var opts []compose.Option
	if c.handler != nil {
		opts = append(opts, compose.WithCallbacks(c.handler))
	}
	reply, err := c.chain.Invoke(ctx, req, opts...)
	return reply, time.Since(start), err
}
