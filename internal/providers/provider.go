package providers

import (
	"context"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

// AIProvider answers a single prompt with one AI platform
type AIProvider interface {
	RunQuestion(ctx context.Context, query string) (*common.AIResponse, error)
	GetProviderName() string
}
