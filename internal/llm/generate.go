package llm

import "context"

// Request is one chat completion: an optional system message and a user
// message sent to a named model.
type Request struct {
	// Name identifies the prompt for logs and metrics.
	Name        string
	Model       string
	System      string
	User        string
	Temperature *float32
	// OverwriteCache skips the cached reply and replaces it, used when a
	// previous reply could not be parsed.
	OverwriteCache bool
}

// Reply is a model's answer.
type Reply struct {
	Content string `json:"content"`
	Reason  string `json:"reason,omitempty"`
}

// Generator answers chat requests.
type Generator interface {
	Generate(ctx context.Context, req Request) (Reply, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Reply, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
