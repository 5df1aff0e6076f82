package synthesis

import (
	"fmt"
	"strings"
)

// extractJSON pulls the JSON object out of a model response. Structured
// output mode should return bare JSON, but models still wrap it in
// markdown fences or chat around it often enough that recovery is cheaper
// than a retry.
func extractJSON(content string) (string, error) {
	jsonStr := content
	if strings.Contains(content, "```json") {
		start := strings.Index(content, "```json") + 7
		end := strings.Index(content[start:], "```")
		if end > 0 {
			jsonStr = content[start : start+end]
		}
	} else if strings.Contains(content, "```") {
		start := strings.Index(content, "```") + 3
		end := strings.Index(content[start:], "```")
		if end > 0 {
			jsonStr = content[start : start+end]
		}
	}

	jsonStr = strings.TrimSpace(jsonStr)
	if !strings.HasPrefix(jsonStr, "{") {
		// Prose around a bare object: take the first balanced object.
		jsonStr = firstBalancedObject(jsonStr)
	}
	if jsonStr == "" {
		return "", fmt.Errorf("no JSON object in response")
	}
	return sanitizeJSONString(jsonStr), nil
}

// firstBalancedObject returns the first {...} with balanced braces,
// ignoring braces inside string literals.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSONString fixes the invalid escape sequences models emit.
// Valid JSON escapes are \" \\ \/ \b \f \n \r \t \uXXXX; for anything else
// the backslash is dropped.
func sanitizeJSONString(jsonStr string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(jsonStr))
	for i := 0; i < len(jsonStr); i++ {
		if jsonStr[i] != '\\' || i == len(jsonStr)-1 {
			cleaned.WriteByte(jsonStr[i])
			continue
		}
		next := jsonStr[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
			cleaned.WriteByte('\\')
			cleaned.WriteByte(next)
		default:
			cleaned.WriteByte(next)
		}
		i++
	}
	return cleaned.String()
}
