package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// NoPagesMessage is returned to the agent when no page survived fetching.
const NoPagesMessage = "No web pages could be retrieved due to access restrictions (403 Forbidden) or other errors."

const (
	defaultPKQuota       = 20
	defaultSelectQuota   = 20
	defaultSearchWorkers = 4
)

// BrowserOptions sizes one search round.
type BrowserOptions struct {
	// PKQuota caps the merged hits fetched per round.
	PKQuota int
	// SelectQuota is the minimum number of pages kept after judging.
	SelectQuota   int
	SearchWorkers int
	// Logger receives the logs of every stage. Defaults to slog.Default().
	Logger *slog.Logger
}

// Browser runs the full pipeline for one round of an agent's search: query
// the backend, merge, fetch, judge and summarise.
type Browser struct {
	searcher   Searcher
	fetcher    *Fetcher
	selector   *Selector
	summarizer *Summarizer
	opts       BrowserOptions
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewBrowser wires the pipeline stages together. c caches whole rounds and
// may be nil.
func NewBrowser(s Searcher, f *Fetcher, sel *Selector, sum *Summarizer, opts BrowserOptions, c *cache.Cache) *Browser {
	if opts.PKQuota <= 0 {
		opts.PKQuota = defaultPKQuota
	}
	if opts.SelectQuota <= 0 {
		opts.SelectQuota = defaultSelectQuota
	}
	if opts.SearchWorkers <= 0 {
		opts.SearchWorkers = defaultSearchWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if f != nil {
		f.logger = logger
	}
	if sel != nil {
		sel.logger = logger
	}
	if sum != nil {
		sum.logger = logger
	}
	return &Browser{searcher: s, fetcher: f, selector: sel, summarizer: sum, opts: opts, cache: c, logger: logger}
}

// Result is the outcome of one round. Text is what the agent reads next.
type Result struct {
	Pages []Page `json:"pages"`
	Text  string `json:"text"`
}

// FullPipelineSearch runs queries for question and returns the summarised
// pages, numbered from startIndex so citations stay unique across rounds.
func (b *Browser) FullPipelineSearch(ctx context.Context, queries []string, question, think string, startIndex int) (Result, error) {
	key := map[string]any{
		"queries":     queries,
		"question":    question,
		"think":       think,
		"start_index": startIndex,
		"searcher":    b.searcher.Name(),
	}
	var res Result
	if b.cache.Get(key, &res) {
		return res, nil
	}

	hits, err := b.searchAll(ctx, queries)
	if err != nil {
		return Result{}, err
	}
	merged := mergeHits(queries, hits, b.opts.PKQuota)
	metrics.SearchPages.WithLabelValues("searched").Add(float64(len(merged)))
	b.logger.Debug("search round", "queries", len(queries), "merged", len(merged))

	pages := b.fetcher.FetchAll(ctx, merged)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{Text: NoPagesMessage}, nil
	}

	n := max(len(queries), b.opts.SelectQuota)
	pages, err = b.selector.Select(ctx, pages, think, n)
	if err != nil {
		return Result{}, fmt.Errorf("select pages: %w", err)
	}
	pages, err = b.summarizer.Summarize(ctx, pages, question, think)
	if err != nil {
		return Result{}, fmt.Errorf("summarize pages: %w", err)
	}
	if len(pages) == 0 {
		return Result{Text: NoPagesMessage}, nil
	}

	blocks := make([]string, len(pages))
	for i := range pages {
		pages[i].GlobalIndex = startIndex + i
		blocks[i] = pages[i].Format()
	}
	res = Result{Pages: pages, Text: strings.Join(blocks, "\n\n")}
	b.cache.Put(key, res)
	return res, nil
}

// searchAll runs every query in parallel. A failing query contributes no
// hits; only cancellation aborts the round.
func (b *Browser) searchAll(ctx context.Context, queries []string) ([][]Page, error) {
	hits := make([][]Page, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.SearchWorkers)
	for i, q := range queries {
		g.Go(func() error {
			pages, err := b.searcher.Search(gctx, q)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Warn("search query failed", "query", q, "searcher", b.searcher.Name(), "error", err)
				return nil
			}
			hits[i] = pages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hits, nil
}

// mergeHits interleaves the hit lists rank by rank until quota pages are
// taken, skipping PDFs and urls already taken.
func mergeHits(queries []string, hits [][]Page, quota int) []Page {
	seen := make(map[string]bool)
	var out []Page
	for rank := 0; len(out) < quota; rank++ {
		progressed := false
		for qi, list := range hits {
			if rank >= len(list) {
				continue
			}
			progressed = true
			if len(out) >= quota {
				break
			}
			p := list[rank]
			if seen[p.URL] || strings.HasSuffix(strings.ToLower(p.URL), ".pdf") {
				continue
			}
			seen[p.URL] = true
			p.Query = queries[qi]
			p.PKIndex = len(out)
			out = append(out, p)
		}
		if !progressed {
			break
		}
	}
	return out
}
