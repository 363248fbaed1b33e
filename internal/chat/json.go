package chat

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls the JSON object out of a model response, stripping
// markdown fences and any prose around the outermost braces.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// unmarshalResponse parses a model response as JSON into out.
func unmarshalResponse(raw string, out any) error {
	return json.Unmarshal([]byte(extractJSON(raw)), out)
}
