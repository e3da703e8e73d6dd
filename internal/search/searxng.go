package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/josephgoksu/quill/internal/cache"
)

// Searxng searches a self-hosted searxng instance through its JSON API.
type Searxng struct {
	endpoint string
	apiKey   string
	params   map[string]string
	client   *http.Client
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewSearxng creates a searxng searcher for the instance at baseURL.
func NewSearxng(baseURL, apiKey string, opts Options, c *cache.Cache) (*Searxng, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("searxng: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("searxng: invalid base URL: %w", err)
	}
	return &Searxng{
		endpoint: baseURL,
		apiKey:   apiKey,
		params:   opts.engineParams(),
		client:   opts.client(),
		cache:    c,
		logger:   opts.logger(),
	}, nil
}

func (s *Searxng) Name() string { return "Searxng" }

type searxngResponse struct {
	Results []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		Content       string `json:"content"`
		Positions     []int  `json:"positions"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// Search runs one query against the instance.
func (s *Searxng) Search(ctx context.Context, query string) ([]Page, error) {
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
	q.Set("format", "json")
	if s.apiKey != "" {
		q.Set("api_key", s.apiKey)
	}

	sep := "?"
	if strings.Contains(s.endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+sep+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("searxng: status %d", resp.StatusCode)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("searxng: decode response: %w", err)
	}
	for i, r := range body.Results {
		pos := i + 1
		if len(r.Positions) > 0 {
			pos = r.Positions[0]
		}
		publish := r.PublishedDate
		if publish == "" {
			publish = NotProvided
		}
		hits = append(hits, Page{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Content,
			Position:    pos,
			PublishTime: publish,
		})
	}
	hits = rank(hits)
	s.logger.Debug("searxng search", "query", query, "hits", len(hits))
	s.cache.Put(key, hits)
	return hits, nil
}
