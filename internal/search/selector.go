package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/internal/metrics"
	"github.com/josephgoksu/quill/internal/utils"
	"github.com/josephgoksu/quill/prompts"
	"github.com/sourcegraph/conc/pool"
)

const (
	selectRetries         = 5
	defaultSelectorWorkers = 8
)

// Judgements, most useful first.
var judgementScores = []struct {
	answer string
	score  int
}{
	{"rich and fully satisfy", 3},
	{"fully satisfy", 2},
	{"partially satisfy", 1},
	{"not satisfy", 0},
}

func parseJudgement(answer string) (int, error) {
	answer = strings.ToLower(answer)
	for _, j := range judgementScores {
		if strings.Contains(answer, j.answer) {
			return j.score, nil
		}
	}
	return 0, fmt.Errorf("unrecognised judgement %q", answer)
}

// Selector asks a model how well each page serves the purpose of a search
// round and keeps the best pages. An optional embedder breaks ties by
// similarity between the page and the round's purpose.
type Selector struct {
	gen      llm.Generator
	prompts  *prompts.Renderer
	model    string
	workers  int
	embedder embedding.Embedder
	logger   *slog.Logger
}

// NewSelector creates a selector judging pages with model.
func NewSelector(gen llm.Generator, r *prompts.Renderer, model string, workers int, emb embedding.Embedder) *Selector {
	if workers <= 0 {
		workers = defaultSelectorWorkers
	}
	return &Selector{gen: gen, prompts: r, model: model, workers: workers, embedder: emb, logger: slog.Default()}
}

func passage(p Page) string {
	return fmt.Sprintf("<title>\n%s\n</title>\n<url>\n%s\n</url>\n<publish_time>\n%s\n</publish_time>\n<content>\n%s\n</content>",
		p.Title, p.URL, p.PublishTime, p.Content)
}

// Select judges every page and returns up to n of them. Pages judged as not
// satisfying are dropped. Selection goes round-robin over the queries that
// found the pages so no single query crowds out the others.
func (s *Selector) Select(ctx context.Context, pages []Page, think string, n int) ([]Page, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	judged := make([]Page, len(pages))
	copy(judged, pages)

	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range judged {
		p.Go(func() {
			judged[i].Judgement = s.judge(ctx, judged[i], think)
		})
	}
	p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	similarity := s.similarities(ctx, judged, think)

	kept := make([]int, 0, len(judged))
	for i, page := range judged {
		if page.Judgement > 0 {
			kept = append(kept, i)
		}
	}
	metrics.SearchPages.WithLabelValues("rejected").Add(float64(len(judged) - len(kept)))

	sort.SliceStable(kept, func(a, b int) bool {
		pa, pb := judged[kept[a]], judged[kept[b]]
		if pa.Judgement != pb.Judgement {
			return pa.Judgement > pb.Judgement
		}
		if similarity != nil && similarity[kept[a]] != similarity[kept[b]] {
			return similarity[kept[a]] > similarity[kept[b]]
		}
		return pa.PKIndex < pb.PKIndex
	})

	ordered := make([]Page, len(kept))
	for i, idx := range kept {
		ordered[i] = judged[idx]
	}
	out := roundRobinByQuery(ordered, n)
	metrics.SearchPages.WithLabelValues("selected").Add(float64(len(out)))
	return out, nil
}

func (s *Selector) judge(ctx context.Context, page Page, think string) int {
	system, user, err := s.prompts.Render(prompts.KeySearchSelect, prompts.Args{Think: think, Passage: passage(page)})
	if err != nil {
		s.logger.Warn("render select prompt", "error", err)
		return 0
	}
	overwrite := false
	for attempt := 0; attempt < selectRetries; attempt++ {
		reply, err := s.gen.Generate(ctx, llm.Request{
			Name:           string(prompts.KeySearchSelect),
			Model:          s.model,
			System:         system,
			User:           user,
			OverwriteCache: overwrite,
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			s.logger.Debug("select page", "url", page.URL, "attempt", attempt, "error", err)
			overwrite = true
			continue
		}
		score, err := parseJudgement(utils.ExtractTag(reply.Content, "answer"))
		if err == nil {
			return score
		}
		s.logger.Debug("select page", "url", page.URL, "attempt", attempt, "error", err)
		overwrite = true
	}
	return 0
}

// similarities returns cosine similarity of each page to think, or nil when
// no embedder is configured or embedding fails.
func (s *Selector) similarities(ctx context.Context, pages []Page, think string) []float64 {
	if s.embedder == nil || strings.TrimSpace(think) == "" {
		return nil
	}
	texts := make([]string, 0, len(pages)+1)
	texts = append(texts, think)
	for _, p := range pages {
		texts = append(texts, utils.Truncate(p.Title+"\n"+p.Content, 2000))
	}
	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		s.logger.Debug("embed pages", "error", err)
		return nil
	}
	out := make([]float64, len(pages))
	for i := range pages {
		out[i] = cosine(vecs[0], vecs[i+1])
	}
	return out
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// roundRobinByQuery takes pages one query at a time, in order of each
// query's first appearance, until n pages are chosen.
func roundRobinByQuery(pages []Page, n int) []Page {
	var order []string
	byQuery := make(map[string][]Page)
	for _, p := range pages {
		if _, ok := byQuery[p.Query]; !ok {
			order = append(order, p.Query)
		}
		byQuery[p.Query] = append(byQuery[p.Query], p)
	}
	out := make([]Page, 0, min(n, len(pages)))
	for len(out) < n {
		progressed := false
		for _, q := range order {
			if len(out) >= n {
				break
			}
			if len(byQuery[q]) == 0 {
				continue
			}
			out = append(out, byQuery[q][0])
			byQuery[q] = byQuery[q][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}
