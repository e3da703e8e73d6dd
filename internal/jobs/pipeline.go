package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/josephgoksu/quill/internal/agents"
	"github.com/josephgoksu/quill/internal/agents/core"
	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/graph"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/search"
)

// dispatcher is the default PerformerFactory: the LLM agents, plus the web
// search pipeline when the job searches.
func (m *Manager) dispatcher(ctx context.Context, p *Plan) (graph.Performer, error) {
	factory := func(ctx context.Context, modelID string) (model.BaseChatModel, error) {
		cfg, err := config.ResolveLLM(modelID, p.APIKeys)
		if err != nil {
			return nil, err
		}
		return llm.NewChatModel(ctx, cfg)
	}
	gen := core.NewGenerator(factory, m.cache(cache.NameLLM, p.Logger), p.Usage, p.Logger)
	gen.MaxTokens = llm.MaxOutputTokens
	gen.Retries = m.opts.LLMRetries

	env := &agents.Env{
		Gen:     gen,
		Prompts: m.opts.Prompts,
		Mode:    p.Mode,
		Memory:  p.Memory,
		Model:   p.LLM.Model,
		Logger:  p.Logger,
	}
	if p.EnableSearch {
		b, err := m.browser(ctx, p, gen)
		if err != nil {
			return nil, err
		}
		env.Browser = b
	}
	return agents.NewDispatcher(env), nil
}

func (m *Manager) browser(ctx context.Context, p *Plan, gen llm.Generator) (*search.Browser, error) {
	var tuning config.SearchTuning
	if exec := p.Mode.Search.Execute; exec != nil {
		tuning = exec.Search
	}
	engineName := p.SearchEngine
	if engineName == "" {
		engineName = tuning.Engine
	}
	opts := search.Options{Engine: engineName, CC: tuning.CC, TopK: tuning.TopK, Logger: p.Logger}

	var (
		s   search.Searcher
		err error
	)
	switch m.opts.SearchBackend {
	case search.BackendSearxng:
		s, err = search.NewSearxng(m.opts.SearxngURL, "", opts, m.cache(cache.NameSearch, p.Logger))
	default:
		s, err = search.NewSerpAPI(config.SearchAPIKey(p.APIKeys), opts, m.cache(cache.NameSearch, p.Logger))
	}
	if err != nil {
		return nil, fmt.Errorf("search backend: %w", err)
	}

	fetcher := search.NewFetcher(nil, tuning.FetchWorkers, m.cache(cache.NameWebPage, p.Logger))
	sel := search.NewSelector(gen, m.opts.Prompts, m.auxModel(tuning.SelectorModel, p), tuning.SelectorWorkers, m.embedder(ctx, p))
	sum := search.NewSummarizer(gen, m.opts.Prompts, m.auxModel(tuning.SummarizerModel, p), tuning.SummarizerWorkers)
	return search.NewBrowser(s, fetcher, sel, sum, search.BrowserOptions{
		PKQuota:       tuning.PKQuota,
		SelectQuota:   tuning.SelectQuota,
		SearchWorkers: tuning.SearchWorkers,
		Logger:        p.Logger,
	}, m.cache(cache.NameSearch, p.Logger)), nil
}

// auxModel returns the model tuned for a search stage when the request
// carries a key for it, otherwise the job's model.
func (m *Manager) auxModel(id string, p *Plan) string {
	if id == "" {
		return p.LLM.Model
	}
	if _, err := config.ResolveLLM(id, p.APIKeys); err != nil {
		p.Logger.Debug("falling back to job model", "model", id, "reason", err)
		return p.LLM.Model
	}
	return id
}

// embedder is nil for providers without embeddings; the selector then ranks
// by judgement alone.
func (m *Manager) embedder(ctx context.Context, p *Plan) embedding.Embedder {
	emb, err := llm.NewEmbeddingModel(ctx, p.LLM)
	if err != nil {
		p.Logger.Debug("embeddings disabled", "reason", err)
		return nil
	}
	return emb
}

func (m *Manager) cache(name string, logger *slog.Logger) *cache.Cache {
	if m.opts.Cache == nil {
		return nil
	}
	return cache.New(name, m.opts.Cache).WithLogger(logger)
}
