package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSONResponse strips code fences and any prose around the outermost
// JSON object or array.
func CleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	lo, hi := "{", "}"
	if i, j := strings.Index(content, "["), strings.Index(content, "{"); i >= 0 && (j < 0 || i < j) {
		lo, hi = "[", "]"
	}
	start := strings.Index(content, lo)
	end := strings.LastIndex(content, hi)
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// DecodeJSON cleans a model answer and unmarshals it into T.
func DecodeJSON[T any](content string) (T, error) {
	var out T
	cleaned := CleanJSONResponse(content)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w, content: %s", err, cleaned)
	}
	return out, nil
}
