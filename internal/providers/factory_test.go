package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/testutil"
)

func TestFactoryCreatesCorrectProvider(t *testing.T) {
	tests := []struct {
		name             string
		expectedProvider string
		shouldError      bool
	}{
		{"openai", "openai", false},
		{"OpenAI", "openai", false},
		{" anthropic ", "anthropic", false},
		{"perplexity", "", true},
		{"", "", true},
	}

	cfg := testutil.SampleConfig()
	costService := testutil.NewMockCostService()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := providers.NewProvider(tt.name, cfg, costService)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedProvider, provider.GetProviderName())
		})
	}
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	cfg := testutil.SampleConfig()
	cfg.AnthropicAPIKey = ""

	_, err := providers.NewProvider("anthropic", cfg, testutil.NewMockCostService())
	assert.Error(t, err)
}

func TestNewFromConfigSkipsUnavailableProviders(t *testing.T) {
	cfg := testutil.SampleConfig()
	cfg.AnthropicAPIKey = ""
	cfg.Providers.Enabled = []string{"openai", "anthropic", "openai"}

	list, err := providers.NewFromConfig(cfg, testutil.NewMockCostService())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "openai", list[0].GetProviderName())
}

func TestNewFromConfigFailsWithoutProviders(t *testing.T) {
	cfg := testutil.SampleConfig()
	cfg.OpenAIAPIKey = ""
	cfg.Providers.Enabled = []string{"openai"}

	_, err := providers.NewFromConfig(cfg, testutil.NewMockCostService())
	assert.Error(t, err)
}
