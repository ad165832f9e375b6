package testutil

import (
	"time"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
)

// SampleConfig returns a test configuration
func SampleConfig() *config.Config {
	return &config.Config{
		OpenAIAPIKey:    "test-openai-key",
		AnthropicAPIKey: "test-anthropic-key",
		Providers: config.ProviderConfig{
			Enabled:        []string{"openai", "anthropic"},
			OpenAIModel:    "gpt-4.1",
			AnthropicModel: "claude-sonnet-4-20250514",
			Timeout:        5 * time.Second,
			RatePerSecond:  100,
		},
	}
}

// SampleQueries returns test prompts for the "CRM tools" category
func SampleQueries() []string {
	return []string{
		"What are the top rated CRM tools?",
		"Which CRM tools offers the most features while remaining cost-effective?",
	}
}

// SampleStructuredAnswer returns a provider answer in the structured JSON shape
func SampleStructuredAnswer() string {
	return `{"answer":"Acme CRM is the top rated option, followed by Globex. Many teams pick Acme for its pipeline view.","sources":[{"url":"https://www.g2.com/categories/crm","title":"Best CRM Software"}]}`
}
