package common

import (
	"encoding/json"
	"strings"
)

// StructuredAnswer is the JSON shape providers are asked to answer in
type StructuredAnswer struct {
	Answer  string      `json:"answer" jsonschema_description:"The comprehensive answer to the question, naming specific products or companies"`
	Sources []SourceRef `json:"sources" jsonschema_description:"Sources that support the answer"`
}

// ParseStructuredAnswer decodes a StructuredAnswer, tolerating markdown code
// fences around the JSON. When the payload is not a structured answer the raw
// text is returned with no sources.
func ParseStructuredAnswer(raw string) (string, []SourceRef) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
		body = strings.TrimSpace(body)
	}

	var parsed StructuredAnswer
	if err := json.Unmarshal([]byte(body), &parsed); err != nil || strings.TrimSpace(parsed.Answer) == "" {
		return raw, nil
	}

	sources := make([]SourceRef, 0, len(parsed.Sources))
	for _, src := range parsed.Sources {
		if strings.TrimSpace(src.URL) == "" {
			continue
		}
		sources = append(sources, SourceRef{URL: strings.TrimSpace(src.URL), Title: strings.TrimSpace(src.Title)})
	}
	return parsed.Answer, sources
}
