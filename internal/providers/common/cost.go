package common

import "strings"

type costService struct{}

func NewCostService() CostService {
	return &costService{}
}

// Cost per 1M tokens
var costPerToken = map[string]struct{ input, output float64 }{
	"gpt-5":                    {input: 1.25, output: 10.00},
	"gpt-5-mini":               {input: 0.25, output: 2.00},
	"gpt-4.1":                  {input: 3.00, output: 12.00},
	"gpt-4.1-mini":             {input: 0.80, output: 3.20},
	"gpt-4o":                   {input: 2.50, output: 10.00},
	"claude-sonnet-4-20250514": {input: 3.00, output: 15.00},
	"claude-3-5-haiku-latest":  {input: 0.80, output: 4.00},
}

// default pricing per provider when the model is not in the table
var providerDefaults = map[string]string{
	"openai":    "gpt-4.1",
	"anthropic": "claude-sonnet-4-20250514",
}

func (s *costService) CalculateCost(provider string, model string, inputTokens int, outputTokens int) float64 {
	modelCosts, exists := costPerToken[model]
	if !exists {
		modelCosts = costPerToken[providerDefaults[providerKey(provider)]]
	}

	inputCost := (float64(inputTokens) / 1_000_000.0) * modelCosts.input
	outputCost := (float64(outputTokens) / 1_000_000.0) * modelCosts.output
	return inputCost + outputCost
}

func providerKey(provider string) string {
	provider = strings.ToLower(provider)
	if strings.Contains(provider, "anthropic") || strings.Contains(provider, "claude") {
		return "anthropic"
	}
	return "openai" // default
}
