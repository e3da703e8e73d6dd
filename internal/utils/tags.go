package utils

import (
	"regexp"
	"strings"
	"sync"
)

var (
	tagPatternsMu sync.Mutex
	tagPatterns   = make(map[string]*regexp.Regexp)
)

// ExtractTag returns the text inside <tag>...</tag>. Model replies usually put
// each tag on its own line, so those blocks are collected first (all of them,
// joined by newlines). When no tag sits on its own line, inline
// occurrences are matched instead.
func ExtractTag(content, tag string) string {
	open, closing := "<"+tag+">", "</"+tag+">"

	var lines []string
	inside, found := false, false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == open:
			inside, found = true, true
			continue
		case trimmed == closing:
			inside = false
			continue
		}
		if inside {
			lines = append(lines, trimmed)
		}
	}
	if found {
		return strings.Join(lines, "\n")
	}

	matches := tagPattern(tag).FindAllStringSubmatch(content, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}
	return strings.Join(parts, "\n")
}

// ExtractTagPath walks nested tags outermost first, e.g.
// ["result", "goal_updating"] reads <goal_updating> inside <result>.
func ExtractTagPath(content string, path []string) string {
	for _, tag := range path {
		content = ExtractTag(content, tag)
	}
	return content
}

func tagPattern(tag string) *regexp.Regexp {
	tagPatternsMu.Lock()
	defer tagPatternsMu.Unlock()
	if re, ok := tagPatterns[tag]; ok {
		return re
	}
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + q + `>(.*?)</` + q + `>`)
	tagPatterns[tag] = re
	return re
}
