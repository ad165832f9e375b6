package openai

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

const systemPrompt = "You are a helpful assistant that provides accurate, comprehensive answers to questions. " +
	"Name specific products, brands or companies where relevant and list the sources you relied on."

type Provider struct {
	client      *openai.Client
	model       string
	costService common.CostService
}

// NewProvider builds a chat-completions provider. baseURL is optional and
// only set in tests or for compatible gateways.
func NewProvider(apiKey, model, baseURL string, costService common.CostService) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	log.Info().Str("component", "OpenAIProvider").Str("model", model).Msg("using OpenAI chat completions")

	return &Provider{
		client:      &client,
		model:       model,
		costService: costService,
	}
}

func (p *Provider) GetProviderName() string {
	return "openai"
}

// Generate the JSON schema at initialization time
var structuredAnswerSchema = generateSchema[common.StructuredAnswer]()

func generateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func (p *Provider) RunQuestion(ctx context.Context, query string) (*common.AIResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "visibility_answer",
		Description: openai.String("Answer to the question with the sources it relies on"),
		Schema:      structuredAnswerSchema,
		Strict:      openai.Bool(true),
	}

	response, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(query),
		},
		Model: openai.ChatModel(p.model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(2000),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	answer, sources := common.ParseStructuredAnswer(response.Choices[0].Message.Content)
	if answer == "" {
		return nil, fmt.Errorf("empty response content")
	}

	inputTokens := int(response.Usage.PromptTokens)
	outputTokens := int(response.Usage.CompletionTokens)
	return &common.AIResponse{
		Response:     answer,
		Sources:      sources,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         p.costService.CalculateCost(p.GetProviderName(), p.model, inputTokens, outputTokens),
	}, nil
}
