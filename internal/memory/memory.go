// Package memory is the engine's working memory: the article written so far,
// every web page retrieved, and the context each node sees when it runs.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/josephgoksu/quill/internal/search"
)

// Memory holds state shared by every node of one job.
type Memory struct {
	mu               sync.RWMutex
	article          string
	searchResults    []search.Page
	globalStartIndex int
}

// New returns an empty memory whose citation index starts at 1.
func New() *Memory {
	return &Memory{globalStartIndex: 1}
}

// Article returns the text written so far.
func (m *Memory) Article() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.article
}

// AppendArticle adds a finished section to the article.
func (m *Memory) AppendArticle(section string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.article += "\n\n" + section
}

// GlobalStartIndex is the citation index the next retrieved page will get.
func (m *Memory) GlobalStartIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalStartIndex
}

// AddSearchResult stores a cited page and advances the citation index.
func (m *Memory) AddSearchResult(p search.Page) search.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchResults = append(m.searchResults, p)
	m.globalStartIndex++
	return p
}

// SearchResults returns a copy of every stored page.
func (m *Memory) SearchResults() []search.Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]search.Page(nil), m.searchResults...)
}

// Snapshot is the persisted form of Memory.
type Snapshot struct {
	Article          string        `json:"article"`
	AllSearchResults []search.Page `json:"all_search_results"`
}

// Snapshot copies the current state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Article: m.article, AllSearchResults: append([]search.Page{}, m.searchResults...)}
	return s
}

// MarshalJSON writes the snapshot form.
func (m *Memory) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

// Restore loads a snapshot written by a previous run.
func Restore(data []byte) (*Memory, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	return &Memory{
		article:          s.Article,
		searchResults:    s.AllSearchResults,
		globalStartIndex: len(s.AllSearchResults) + 1,
	}, nil
}
