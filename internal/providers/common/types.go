package common

// AIResponse contains the response from an AI provider
// Defined here to avoid import cycles
type AIResponse struct {
	Response     string
	Sources      []SourceRef // structured sources reported by the provider, if any
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// SourceRef is a cited source as reported by the provider itself
type SourceRef struct {
	URL   string `json:"url" jsonschema_description:"Absolute URL of the source"`
	Title string `json:"title" jsonschema_description:"Title of the source page, empty when unknown"`
}

// CostService estimates the USD cost of a provider call
type CostService interface {
	CalculateCost(provider string, model string, inputTokens int, outputTokens int) float64
}
