package testutil

import (
	"context"
	"sync"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
)

// MockCostService is a mock implementation of CostService for testing
type MockCostService struct {
	CalculateCostFunc func(provider, model string, inputTokens, outputTokens int) float64
}

func (m *MockCostService) CalculateCost(provider, model string, inputTokens, outputTokens int) float64 {
	if m.CalculateCostFunc != nil {
		return m.CalculateCostFunc(provider, model, inputTokens, outputTokens)
	}
	return 0.0015 // Default mock cost
}

// NewMockCostService creates a new mock cost service
func NewMockCostService() *MockCostService {
	return &MockCostService{}
}

// MockProvider is a scriptable AIProvider. Calls are recorded per query.
type MockProvider struct {
	Name            string
	RunQuestionFunc func(ctx context.Context, query string) (*common.AIResponse, error)

	mu    sync.Mutex
	calls []string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{Name: name}
}

func (m *MockProvider) GetProviderName() string {
	return m.Name
}

func (m *MockProvider) RunQuestion(ctx context.Context, query string) (*common.AIResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, query)
	m.mu.Unlock()

	if m.RunQuestionFunc != nil {
		return m.RunQuestionFunc(ctx, query)
	}
	return &common.AIResponse{Response: "No brands here.", InputTokens: 10, OutputTokens: 20, Cost: 0.0015}, nil
}

// Calls returns the queries received so far
func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns the number of RunQuestion invocations
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ResponsesByQuery returns a RunQuestionFunc answering from a fixed table;
// unknown queries get an empty-ish answer.
func ResponsesByQuery(answers map[string]string) func(ctx context.Context, query string) (*common.AIResponse, error) {
	return func(ctx context.Context, query string) (*common.AIResponse, error) {
		text, ok := answers[query]
		if !ok {
			text = "No relevant products found."
		}
		return &common.AIResponse{Response: text, InputTokens: 10, OutputTokens: 20, Cost: 0.0015}, nil
	}
}
