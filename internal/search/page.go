// Package search runs web searches, fetches result pages, picks the most
// useful ones and summarises them for the writing engine.
package search

import (
	"fmt"
	"strings"
)

// Page is one web result as it moves through the pipeline: raw search hit,
// fetched content, relevance judgement and summary.
type Page struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"snippet,omitempty"`
	PublishTime string `json:"publish_time"`
	Position    int    `json:"position"`

	Content     string `json:"content,omitempty"`
	Query       string `json:"search_query,omitempty"`
	PKIndex     int    `json:"pk_index"`
	Judgement   int    `json:"judgement,omitempty"`
	Summary     string `json:"summary,omitempty"`
	GlobalIndex int    `json:"global_index,omitempty"`
}

// NotProvided fills publish times backends do not report.
const NotProvided = "Not Provided"

// Format renders the page the way the merge and writing prompts cite it.
func (p Page) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<web_page index=%d>\n", p.GlobalIndex)
	fmt.Fprintf(&b, "<title>\n%s\n</title>\n", p.Title)
	fmt.Fprintf(&b, "<url>\n%s\n</url>\n", p.URL)
	fmt.Fprintf(&b, "<page_time>\n%s\n</page_time>\n", p.PublishTime)
	fmt.Fprintf(&b, "<summary>\n%s\n</summary>\n", p.Summary)
	b.WriteString("</web_page>")
	return b.String()
}
