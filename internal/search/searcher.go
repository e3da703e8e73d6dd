package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Searcher queries a web search backend. Results come back ordered by rank
// with Position renumbered from 1.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]Page, error)
}

// Backends.
const (
	BackendSerpAPI = "serpapi"
	BackendSearxng = "searxng"
)

// Engines a backend can be asked to use.
const (
	EngineGoogle = "google"
	EngineBing   = "bing"
)

// Options configures a Searcher.
type Options struct {
	Engine string
	CC     string // country code
	TopK   int
	Client *http.Client
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

const defaultTopK = 20

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func (o Options) topK() int {
	if o.TopK <= 0 {
		return defaultTopK
	}
	return o.TopK
}

// engineParams are the query parameters both backends understand for
// selecting an engine and region.
func (o Options) engineParams() map[string]string {
	engine := o.Engine
	if engine == "" {
		engine = EngineGoogle
	}
	cc := o.CC
	if cc == "" {
		cc = "US"
	}
	params := map[string]string{
		"engine": engine,
		"count":  fmt.Sprint(o.topK()),
	}
	if engine == EngineBing {
		params["cc"] = cc
	} else {
		params["gl"] = strings.ToLower(cc)
	}
	return params
}

// rank orders hits by the backend's position, drops duplicate urls and
// renumbers positions from 1.
func rank(hits []Page) []Page {
	seen := make(map[string]bool, len(hits))
	out := make([]Page, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" || seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		if h.PublishTime == "" {
			h.PublishTime = NotProvided
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
