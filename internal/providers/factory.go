package providers

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/anthropic"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/openai"
)

// NewProvider creates the AI provider registered under name
func NewProvider(name string, cfg *config.Config, costService common.CostService) (AIProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is empty in config")
		}
		return openai.NewProvider(cfg.OpenAIAPIKey, cfg.Providers.OpenAIModel, "", costService), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key is empty in config")
		}
		return anthropic.NewProvider(cfg.AnthropicAPIKey, cfg.Providers.AnthropicModel, "", costService), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// NewFromConfig builds every enabled provider wrapped in Resilient. Providers
// that cannot be built are skipped with a warning; none at all is an error.
func NewFromConfig(cfg *config.Config, costService common.CostService) ([]AIProvider, error) {
	var out []AIProvider
	seen := make(map[string]bool)

	for _, name := range cfg.Providers.Enabled {
		if seen[name] {
			continue
		}
		seen[name] = true

		provider, err := NewProvider(name, cfg, costService)
		if err != nil {
			log.Warn().Err(err).Str("component", "ProviderFactory").Str("provider", name).Msg("skipping provider")
			continue
		}
		log.Info().Str("component", "ProviderFactory").Str("provider", name).Msg("provider enabled")

		out = append(out, NewResilient(provider, ResilientOptions{
			Timeout:       cfg.Providers.Timeout,
			RatePerSecond: cfg.Providers.RatePerSecond,
		}))
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no AI providers configured (PROVIDERS=%s)", strings.Join(cfg.Providers.Enabled, ","))
	}
	return out, nil
}
