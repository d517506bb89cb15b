package research

import "strings"

// minFallbackLen is the shortest string the generic fallback will accept as
// research text. Shorter values are assumed to be ids, statuses, or labels.
const minFallbackLen = 80

// extractStrategy attempts to pull usable research text from a decoded
// provider payload. Strategies are tried in order; the first match wins.
type extractStrategy func(payload map[string]any) (string, bool)

var extractStrategies = []extractStrategy{
	directField,
	nestedField,
	longestString,
}

// ExtractText pulls research text from an unstructured provider response.
func ExtractText(payload map[string]any) (string, bool) {
	for _, strategy := range extractStrategies {
		if text, ok := strategy(payload); ok {
			return text, true
		}
	}
	return "", false
}

// directField checks the well-known top-level fields.
func directField(payload map[string]any) (string, bool) {
	for _, key := range []string{"research", "text", "content", "output"} {
		if s, ok := stringValue(payload[key]); ok {
			return s, true
		}
	}
	return "", false
}

// nestedField checks one level of wrapper objects for the same fields.
func nestedField(payload map[string]any) (string, bool) {
	for _, key := range []string{"result", "data", "response", "message"} {
		inner, ok := payload[key].(map[string]any)
		if !ok {
			continue
		}
		if s, found := directField(inner); found {
			return s, true
		}
	}
	return "", false
}

// longestString falls back to the longest string value anywhere in the
// payload, one wrapper level deep, provided it looks like prose. Candidates
// are trimmed the same way the field strategies trim theirs.
func longestString(payload map[string]any) (string, bool) {
	best := ""
	var walk func(m map[string]any, depth int)
	walk = func(m map[string]any, depth int) {
		for _, v := range m {
			switch val := v.(type) {
			case string:
				if trimmed := strings.TrimSpace(val); len(trimmed) > len(best) {
					best = trimmed
				}
			case map[string]any:
				if depth < 1 {
					walk(val, depth+1)
				}
			}
		}
	}
	walk(payload, 0)

	if len(best) >= minFallbackLen {
		return best, true
	}
	return "", false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}
