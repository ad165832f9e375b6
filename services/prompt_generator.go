// services/prompt_generator.go
package services

import (
	"fmt"
	"strings"
)

var basePromptTemplates = []string{
	"What are the top rated %s?",
	"Which %s offers the most features while remaining cost-effective?",
}

type promptGenerator struct{}

func NewPromptGenerator() PromptGenerator {
	return &promptGenerator{}
}

// Generate returns the base prompts for category followed by the non-blank
// custom prompts in submission order.
func (g *promptGenerator) Generate(category string, customPrompts []string) []string {
	category = strings.TrimSpace(category)

	prompts := make([]string, 0, len(basePromptTemplates)+len(customPrompts))
	for _, tmpl := range basePromptTemplates {
		prompts = append(prompts, fmt.Sprintf(tmpl, category))
	}
	for _, custom := range customPrompts {
		if custom = strings.TrimSpace(custom); custom != "" {
			prompts = append(prompts, custom)
		}
	}
	return prompts
}
