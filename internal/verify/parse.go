package verify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeResponse normalizes a completion-service payload into target.
// Every provider's idiosyncratic wrapping (markdown fences, prose before
// the JSON, trailing commentary) reduces to one failure signal here; the
// caller applies its stub-substitution policy on error.
func decodeResponse(response string, target interface{}) error {
	cleaned := stripFences(response)
	cleaned = extractJSON(cleaned)
	if cleaned == "" {
		return fmt.Errorf("no JSON payload in response")
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return fmt.Errorf("parse response JSON: %w", err)
	}
	return nil
}

// stripFences removes markdown code fences around a payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSON slices out the first top-level JSON array or object, which
// tolerates providers that wrap the payload in prose.
func extractJSON(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '[' || s[i] == '{' {
			start = i
			open = s[i]
			if open == '[' {
				close = ']'
			} else {
				close = '}'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncateText bounds a string at max characters with a marker.
func truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}
