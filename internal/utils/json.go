package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ```json ... ``` blocks embedded in prose.
	fencedJSONRegex = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

	// ,} and ,]
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

	// "a"\n"b": -> "a",\n"b":
	missingCommaRegex = regexp.MustCompile(`("|\d|true|false|null|[}\]])\s*\n\s*("[^"\n]+"\s*:)`)

	// {'key': -> {"key":
	singleQuoteKeyRegex = regexp.MustCompile(`([{,]\s*)'([^'\n]+)'(\s*:)`)

	// : 'value' -> : "value" and ['a', 'b'] -> ["a", "b"]
	singleQuoteValueRegex = regexp.MustCompile(`([:\[,]\s*)'((?:[^'\\]|\\.)*)'(\s*[,}\]])`)
)

// ExtractAndParseJSON pulls the first JSON value out of a model response and
// decodes it into T. It strips code fences, ignores text around the value and
// retries with light repairs for the mistakes models commonly make.
func ExtractAndParseJSON[T any](response string) (T, error) {
	var result T

	candidates := []string{cleanLLMResponse(response)}
	if m := fencedJSONRegex.FindStringSubmatch(response); m != nil {
		candidates = append(candidates, m[1])
	}

	var firstErr error
	for _, c := range candidates {
		idx := strings.IndexAny(c, "{[")
		if idx < 0 {
			continue
		}
		body := c[idx:]
		if err := decodeFirst(body, &result); err == nil {
			return result, nil
		} else if firstErr == nil {
			firstErr = err
		}
		if repaired := repairJSON(body); repaired != body {
			if err := decodeFirst(repaired, &result); err == nil {
				return result, nil
			}
		}
	}
	if firstErr == nil {
		return result, fmt.Errorf("no JSON found in response")
	}
	return result, fmt.Errorf("parse JSON: %w", firstErr)
}

// decodeFirst decodes one JSON value and ignores whatever follows it.
func decodeFirst(s string, v any) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}

func repairJSON(input string) string {
	out := sanitizeControlChars(input)
	out = missingCommaRegex.ReplaceAllString(out, `$1, $2`)
	out = trailingCommaRegex.ReplaceAllString(out, `$1`)
	out = singleQuoteKeyRegex.ReplaceAllString(out, `$1"$2"$3`)
	// Adjacent values share a comma, so one pass only fixes every other one.
	for i := 0; i < 4; i++ {
		next := singleQuoteValueRegex.ReplaceAllStringFunc(out, quoteValue)
		if next == out {
			break
		}
		out = next
	}
	return closeTruncated(out)
}

func quoteValue(match string) string {
	parts := singleQuoteValueRegex.FindStringSubmatch(match)
	if len(parts) != 4 {
		return match
	}
	value := strings.ReplaceAll(parts[2], `\'`, `'`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return parts[1] + `"` + value + `"` + parts[3]
}

// sanitizeControlChars escapes raw control characters that appear inside
// JSON strings.
func sanitizeControlChars(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	inString, escaped := false, false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString && c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\t':
				b.WriteString(`\t`)
			case '\r':
				b.WriteString(`\r`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeTruncated closes an unterminated string and any open brackets, in
// nesting order, for output that was cut off mid-value.
func closeTruncated(input string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(input); i++ {
		c := input[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case (c == '}' || c == ']') && len(stack) > 0:
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		input += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		input += string(stack[i])
	}
	return input
}

// cleanLLMResponse strips surrounding whitespace and a markdown fence.
func cleanLLMResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}
