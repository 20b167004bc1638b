package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSONResponse unmarshals an LLM response into dst, tolerating markdown
// code fences and prose around the JSON object. Reasoners frequently wrap
// their output in ```json fences despite instructions not to.
func DecodeJSONResponse(text string, dst any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty reasoner response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	// Prose before or after the object: cut to the outermost braces.
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start >= 0 && end > start {
			text = text[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return fmt.Errorf("parsing reasoner response as JSON: %w", err)
	}
	return nil
}
