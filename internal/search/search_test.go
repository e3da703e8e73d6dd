package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/llm"
	"github.com/josephgoksu/quill/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var longText = strings.Repeat("The harbour town exported salt and timber for two centuries. ", 5)

func TestRank(t *testing.T) {
	hits := []Page{
		{URL: "https://b.example", Position: 3},
		{URL: "https://a.example", Position: 1, PublishTime: "2024-01-01"},
		{URL: "https://b.example", Position: 4},
		{URL: "", Position: 2},
	}
	got := rank(hits)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].URL)
	assert.Equal(t, 1, got[0].Position)
	assert.Equal(t, "https://b.example", got[1].URL)
	assert.Equal(t, 2, got[1].Position)
	assert.Equal(t, NotProvided, got[1].PublishTime)
}

func TestEngineParams(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want map[string]string
	}{
		{"defaults", Options{}, map[string]string{"engine": "google", "count": "20", "gl": "us"}},
		{"bing keeps cc", Options{Engine: EngineBing, CC: "DE", TopK: 5}, map[string]string{"engine": "bing", "count": "5", "cc": "DE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.engineParams())
		})
	}
}

func TestSerpAPI_Search(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "salt trade", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"organic_results":[
			{"link":"https://two.example","title":"Two","snippet":"second","position":2},
			{"link":"https://one.example","title":"One","snippet":"first","position":1,"date":"Mar 3, 2024"}
		]}`)
	}))
	defer srv.Close()

	c := cache.New(cache.NameSearch, cache.NewMemoryBackend())
	s, err := NewSerpAPI("secret", Options{Client: srv.Client()}, c)
	require.NoError(t, err)
	s.endpoint = srv.URL

	hits, err := s.Search(context.Background(), "salt trade")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://one.example", hits[0].URL)
	assert.Equal(t, "Mar 3, 2024", hits[0].PublishTime)
	assert.Equal(t, "second", hits[1].Description)
	assert.Equal(t, NotProvided, hits[1].PublishTime)

	_, err = s.Search(context.Background(), "salt trade")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second search should be served from cache")
}

func TestSerpAPI_Errors(t *testing.T) {
	_, err := NewSerpAPI("", Options{}, nil)
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Invalid API key"}`)
	}))
	defer srv.Close()
	s, err := NewSerpAPI("bad", Options{Client: srv.Client()}, nil)
	require.NoError(t, err)
	s.endpoint = srv.URL
	_, err = s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestSearxng_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[
			{"url":"https://late.example","title":"Late","content":"l","positions":[2]},
			{"url":"https://early.example","title":"Early","content":"e","positions":[1],"publishedDate":"2023-05-01"}
		]}`)
	}))
	defer srv.Close()

	s, err := NewSearxng(srv.URL, "", Options{Client: srv.Client()}, nil)
	require.NoError(t, err)
	hits, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://early.example", hits[0].URL)
	assert.Equal(t, "2023-05-01", hits[0].PublishTime)

	_, err = NewSearxng("  ", "", Options{}, nil)
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	doc := `<html><head><script>var x = 1;</script><style>p{}</style></head>
<body><nav>Home | About</nav><p>Hello <b>world</b></p><div>Second   block</div>
<footer>Copyright</footer></body></html>`
	got, err := ExtractText(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Contains(t, got, "Hello world\nSecond block")
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "Home | About")
	assert.NotContains(t, got, "Copyright")
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<p>too short</p>")
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><body><p>%s %s</p></body></html>", r.URL.Path, longText)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_FetchAll(t *testing.T) {
	srv := pageServer(t)
	f := NewFetcher(srv.Client(), 2, nil)

	pages := []Page{
		{URL: srv.URL + "/long", Description: "snip"},
		{URL: srv.URL + "/short"},
		{URL: srv.URL + "/missing"},
		{URL: srv.URL + "/other", Description: "other"},
	}
	got := f.FetchAll(context.Background(), pages)
	require.Len(t, got, 2)
	assert.Equal(t, srv.URL+"/long", got[0].URL)
	assert.True(t, strings.HasPrefix(got[0].Content, "Snippet: snip\nContent: /long The harbour town"))
	assert.Equal(t, srv.URL+"/other", got[1].URL)
}

func TestMergeHits(t *testing.T) {
	hits := [][]Page{
		{{URL: "a"}, {URL: "paper.PDF"}, {URL: "b"}},
		{{URL: "a"}, {URL: "c"}},
	}
	got := mergeHits([]string{"q1", "q2"}, hits, 10)
	var urls []string
	for i, p := range got {
		urls = append(urls, p.URL)
		assert.Equal(t, i, p.PKIndex)
	}
	assert.Equal(t, []string{"a", "c", "b"}, urls)
	assert.Equal(t, "q1", got[0].Query)
	assert.Equal(t, "q2", got[1].Query)

	assert.Len(t, mergeHits([]string{"q1", "q2"}, hits, 2), 2)
}

func TestRoundRobinByQuery(t *testing.T) {
	pages := []Page{
		{URL: "1", Query: "x"}, {URL: "2", Query: "x"}, {URL: "3", Query: "x"},
		{URL: "4", Query: "y"},
	}
	got := roundRobinByQuery(pages, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].URL)
	assert.Equal(t, "4", got[1].URL)
	assert.Equal(t, "2", got[2].URL)

	assert.Len(t, roundRobinByQuery(pages, 10), 4)
}

func TestParseJudgement(t *testing.T) {
	tests := []struct {
		answer  string
		want    int
		wantErr bool
	}{
		{"Rich and fully satisfy", 3, false},
		{"fully satisfy", 2, false},
		{"partially satisfy", 1, false},
		{"not satisfy", 0, false},
		{"maybe", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, err := parseJudgement(tt.answer)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float64{1}, []float64{1, 2}))
}

// fakeJudge answers select and summarize prompts based on the page url.
func fakeJudge(srvURL string) llm.GeneratorFunc {
	return func(ctx context.Context, req llm.Request) (llm.Reply, error) {
		switch prompts.PromptKey(req.Name) {
		case prompts.KeySearchSelect:
			switch {
			case strings.Contains(req.User, srvURL+"/b\n"):
				return llm.Reply{Content: "<answer>\nnot satisfy\n</answer>"}, nil
			case strings.Contains(req.User, srvURL+"/c\n"):
				return llm.Reply{Content: "<think>\nclear match\n</think>\n<answer>\nrich and fully satisfy\n</answer>"}, nil
			default:
				return llm.Reply{Content: "<answer>partially satisfy</answer>"}, nil
			}
		case prompts.KeySearchSummarize:
			if strings.Contains(req.User, srvURL+"/a\n") {
				return llm.Reply{Content: "<content>\nno content\n</content>"}, nil
			}
			return llm.Reply{Content: "<content>\nSalt left the harbour by ship.\n</content>"}, nil
		}
		return llm.Reply{}, errors.New("unexpected prompt " + req.Name)
	}
}

type fakeSearcher struct {
	calls atomic.Int32
	hits  map[string][]Page
	err   map[string]error
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(_ context.Context, q string) ([]Page, error) {
	f.calls.Add(1)
	if err := f.err[q]; err != nil {
		return nil, err
	}
	return f.hits[q], nil
}

func TestBrowser_FullPipelineSearch(t *testing.T) {
	srv := pageServer(t)
	renderer, err := prompts.NewRenderer("")
	require.NoError(t, err)

	searcher := &fakeSearcher{hits: map[string][]Page{
		"q1": {{URL: srv.URL + "/a", Title: "A"}, {URL: srv.URL + "/doc.pdf"}, {URL: srv.URL + "/b", Title: "B"}},
		"q2": {{URL: srv.URL + "/a"}, {URL: srv.URL + "/c", Title: "C"}},
	}}
	gen := fakeJudge(srv.URL)
	b := NewBrowser(searcher,
		NewFetcher(srv.Client(), 4, nil),
		NewSelector(gen, renderer, "judge", 2, nil),
		NewSummarizer(gen, renderer, "judge", 2),
		BrowserOptions{},
		cache.New(cache.NameSearch, cache.NewMemoryBackend()),
	)

	res, err := b.FullPipelineSearch(context.Background(), []string{"q1", "q2"}, "salt exports", "find trade routes", 5)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	page := res.Pages[0]
	assert.Equal(t, srv.URL+"/c", page.URL)
	assert.Equal(t, 3, page.Judgement)
	assert.Equal(t, 5, page.GlobalIndex)
	assert.Equal(t, "q2", page.Query)
	assert.Equal(t, "Salt left the harbour by ship.", page.Summary)
	assert.True(t, strings.HasPrefix(res.Text, "<web_page index=5>"))

	again, err := b.FullPipelineSearch(context.Background(), []string{"q1", "q2"}, "salt exports", "find trade routes", 5)
	require.NoError(t, err)
	assert.Equal(t, res.Text, again.Text)
	assert.Equal(t, int32(2), searcher.calls.Load(), "repeated round should hit the cache")
}

func TestBrowser_NoPages(t *testing.T) {
	srv := pageServer(t)
	renderer, err := prompts.NewRenderer("")
	require.NoError(t, err)

	searcher := &fakeSearcher{
		hits: map[string][]Page{"q": {{URL: srv.URL + "/missing"}, {URL: srv.URL + "/short"}}},
		err:  map[string]error{"broken": errors.New("quota exceeded")},
	}
	gen := fakeJudge(srv.URL)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fetcher := NewFetcher(srv.Client(), 2, nil)
	b := NewBrowser(searcher, fetcher,
		NewSelector(gen, renderer, "judge", 1, nil), NewSummarizer(gen, renderer, "judge", 1),
		BrowserOptions{Logger: logger}, nil)
	assert.Same(t, logger, fetcher.logger)

	res, err := b.FullPipelineSearch(context.Background(), []string{"q", "broken"}, "question", "think", 1)
	require.NoError(t, err)
	assert.Empty(t, res.Pages)
	assert.Equal(t, NoPagesMessage, res.Text)
	assert.Contains(t, buf.String(), "search query failed")
	assert.Contains(t, buf.String(), "quota exceeded")
}
