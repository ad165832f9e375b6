package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

type Provider struct {
	client      *anthropic.Client
	model       string
	costService common.CostService
}

func NewProvider(apiKey, model, baseURL string, costService common.CostService) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Provider{
		client:      &client,
		model:       model,
		costService: costService,
	}
}

func (p *Provider) GetProviderName() string {
	return "anthropic"
}

func (p *Provider) RunQuestion(ctx context.Context, query string) (*common.AIResponse, error) {
	// Anthropic has no strict schema mode, so the shape is requested in the prompt
	structuredPrompt := fmt.Sprintf(`You are a knowledgeable assistant. Answer the question below, naming specific products, brands or companies where relevant.

Return ONLY a valid JSON object with this structure:

{
  "answer": "Your detailed answer here",
  "sources": [{"url": "https://...", "title": "Source title"}]
}

Question: %s`, query)

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 2000,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: structuredPrompt},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
		Temperature: anthropic.Float(0.7),
	})
	if err != nil {
		return nil, fmt.Errorf("messages request failed: %w", err)
	}

	fullResponse := extractResponseText(response)
	if strings.TrimSpace(fullResponse) == "" {
		return nil, fmt.Errorf("no text content in response")
	}
	answer, sources := common.ParseStructuredAnswer(fullResponse)

	inputTokens := int(response.Usage.InputTokens)
	outputTokens := int(response.Usage.OutputTokens)
	return &common.AIResponse{
		Response:     answer,
		Sources:      sources,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         p.costService.CalculateCost(p.GetProviderName(), p.model, inputTokens, outputTokens),
	}, nil
}

func extractResponseText(response *anthropic.Message) string {
	var textParts []string
	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textParts = append(textParts, variant.Text)
		}
	}
	return strings.Join(textParts, "")
}
