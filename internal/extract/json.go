// internal/extract/json.go
package extract

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first complete JSON object or array out of text.
// Models wrap their JSON in prose or code fences often enough that a
// plain Unmarshal of the whole response is unreliable; this scans for a
// balanced candidate instead. Returns nil when no parseable JSON exists.
func ExtractJSON(text string) json.RawMessage {
	if text == "" {
		return nil
	}

	start := -1
	for i, ch := range text {
		if ch == '{' || ch == '[' {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate)
				}
			}
		}
	}

	// Fallback: widest slice between the opener and the last closer, for
	// output that was truncated or carries trailing junk mid-scan.
	last := strings.LastIndexAny(text, "}]")
	if last > start {
		candidate := text[start : last+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}
	return nil
}
