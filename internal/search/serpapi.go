package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/josephgoksu/quill/internal/cache"
)

// SerpAPIEndpoint is the SerpApi search URL.
const SerpAPIEndpoint = "https://serpapi.com/search"

// SerpAPI searches Google or Bing through serpapi.com.
type SerpAPI struct {
	endpoint string
	apiKey   string
	params   map[string]string
	client   *http.Client
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewSerpAPI creates a SerpApi searcher. c may be nil to disable caching.
func NewSerpAPI(apiKey string, opts Options, c *cache.Cache) (*SerpAPI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi: API key is required")
	}
	return &SerpAPI{
		endpoint: SerpAPIEndpoint,
		apiKey:   apiKey,
		params:   opts.engineParams(),
		client:   opts.client(),
		cache:    c,
		logger:   opts.logger(),
	}, nil
}

func (s *SerpAPI) Name() string { return "SerpApiSearch" }

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Link     string `json:"link"`
		Title    string `json:"title"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
		Date     string `json:"date"`
	} `json:"organic_results"`
}

// Search runs one query. Replies are cached by query and engine settings.
func (s *SerpAPI) Search(ctx context.Context, query string) ([]Page, error) {
	key := map[string]any{"query": query, "params": s.params, "searcher": s.Name()}
	var hits []Page
	if s.cache.Get(key, &hits) && len(hits) > 0 {
		return hits, nil
	}

	q := url.Values{}
	for k, v := range s.params {
		q.Set(k, v)
	}
	q.Set("q", query)
	q.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("serpapi: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || body.Error != "" {
		return nil, fmt.Errorf("serpapi: status %d: %s", resp.StatusCode, body.Error)
	}

	for _, r := range body.OrganicResults {
		pos := r.Position
		if pos == 0 {
			pos = 100
		}
		publish := r.Date
		if publish == "" {
			publish = NotProvided
		}
		hits = append(hits, Page{
			URL:         r.Link,
			Title:       r.Title,
			Description: r.Snippet,
			Position:    pos,
			PublishTime: publish,
		})
	}
	hits = rank(hits)
	s.logger.Debug("serpapi search", "query", query, "hits", len(hits))
	s.cache.Put(key, hits)
	return hits, nil
}
