package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/josephgoksu/quill/internal/cache"
	"github.com/josephgoksu/quill/internal/metrics"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultMinChars drops pages whose extracted text is shorter.
	DefaultMinChars     = 150
	defaultFetchWorkers = 10
	defaultFetchTimeout = 4 * time.Second
	maxPageBytes        = 5 << 20
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// Fetcher downloads result pages and extracts their readable text.
type Fetcher struct {
	client   *http.Client
	workers  int
	minChars int
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewFetcher creates a fetcher running up to workers downloads at once.
func NewFetcher(client *http.Client, workers int, c *cache.Cache) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if workers <= 0 {
		workers = defaultFetchWorkers
	}
	return &Fetcher{client: client, workers: workers, minChars: DefaultMinChars, cache: c, logger: slog.Default()}
}

// FetchAll downloads every page concurrently. Pages that fail or carry too
// little text are dropped; the rest keep their order and gain Content as
// "Snippet: ...\nContent: ...".
func (f *Fetcher) FetchAll(ctx context.Context, pages []Page) []Page {
	texts := make([]string, len(pages))
	p := pool.New().WithMaxGoroutines(f.workers)
	for i := range pages {
		p.Go(func() {
			text, err := f.Text(ctx, pages[i].URL)
			if err != nil {
				f.logger.Debug("fetch failed", "url", pages[i].URL, "error", err)
				return
			}
			texts[i] = text
		})
	}
	p.Wait()

	out := make([]Page, 0, len(pages))
	for i, page := range pages {
		if len([]rune(texts[i])) <= f.minChars {
			metrics.SearchPages.WithLabelValues("fetch_failed").Inc()
			continue
		}
		page.Content = fmt.Sprintf("Snippet: %s\nContent: %s", page.Description, texts[i])
		out = append(out, page)
		metrics.SearchPages.WithLabelValues("fetched").Inc()
	}
	return out
}

// Text downloads one page and returns its extracted text.
func (f *Fetcher) Text(ctx context.Context, pageURL string) (string, error) {
	key := map[string]any{"url": pageURL}
	var cached string
	if f.cache.Get(key, &cached) {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	var text string
	if strings.Contains(ct, "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(string(raw))
	} else {
		text, err = ExtractText(body)
		if err != nil {
			return "", err
		}
	}
	f.cache.Put(key, text)
	return text, nil
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Dd: true, atom.Dt: true,
}

// ExtractText parses HTML and returns its visible text, one block per line.
// Navigation, scripts and other boilerplate elements are skipped.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		line := strings.Join(strings.Fields(cur.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				flush()
				defer flush()
			}
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()
	return strings.Join(lines, "\n"), nil
}
