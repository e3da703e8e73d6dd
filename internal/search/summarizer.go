package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/utils"
	"github.com/josephgoksu/quill/prompts"
	"github.com/sourcegraph/conc/pool"
)

// Summarizer condenses each selected page to the parts relevant to the
// question and the round's purpose.
type Summarizer struct {
	gen     llm.Generator
	prompts *prompts.Renderer
	model   string
	workers int
	logger  *slog.Logger
}

// NewSummarizer creates a summarizer using model.
func NewSummarizer(gen llm.Generator, r *prompts.Renderer, model string, workers int) *Summarizer {
	if workers <= 0 {
		workers = defaultSelectorWorkers
	}
	return &Summarizer{gen: gen, prompts: r, model: model, workers: workers, logger: slog.Default()}
}

// Summarize fills Summary on every page. Pages without relevant content or
// whose summary failed are dropped; the rest keep their order.
func (s *Summarizer) Summarize(ctx context.Context, pages []Page, question, think string) ([]Page, error) {
	summaries := make([]string, len(pages))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range pages {
		p.Go(func() {
			sum, err := s.summarize(ctx, pages[i], question, think)
			if err != nil {
				s.logger.Debug("summarize page", "url", pages[i].URL, "error", err)
				return
			}
			summaries[i] = sum
		})
	}
	p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Page, 0, len(pages))
	for i, page := range pages {
		if isEmptySummary(summaries[i]) {
			continue
		}
		page.Summary = summaries[i]
		out = append(out, page)
	}
	return out, nil
}

func (s *Summarizer) summarize(ctx context.Context, page Page, question, think string) (string, error) {
	system, user, err := s.prompts.Render(prompts.KeySearchSummarize, prompts.Args{
		Question: question,
		Think:    think,
		Passage:  passage(page),
	})
	if err != nil {
		return "", err
	}
	reply, err := s.gen.Generate(ctx, llm.Request{
		Name:   string(prompts.KeySearchSummarize),
		Model:  s.model,
		System: system,
		User:   user,
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", page.URL, err)
	}
	return utils.ExtractTag(reply.Content, "content"), nil
}

func isEmptySummary(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || s == "no content" || s == "no content."
}
