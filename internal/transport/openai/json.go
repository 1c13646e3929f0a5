package openai

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls a JSON object out of free-form completion text. Models
// wrap their output unpredictably, so it tries, in order: the whole text,
// a fenced code block, and the outermost brace span.
func extractJSON(text string) ([]byte, bool) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), true
	}

	for _, fence := range []string{"```json", "```"} {
		if body, ok := fencedBlock(trimmed, fence); ok && json.Valid([]byte(body)) {
			return []byte(body), true
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		body := trimmed[start : end+1]
		if json.Valid([]byte(body)) {
			return []byte(body), true
		}
	}

	return nil, false
}

// truncateRunes caps a string at n runes to keep prompts bounded.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func fencedBlock(text, fence string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
