package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/anthropic"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/testutil"
)

func message(texts ...string) map[string]any {
	content := make([]map[string]any, 0, len(texts))
	for _, text := range texts {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	return map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-20250514",
		"content":       content,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 20, "output_tokens": 80},
	}
}

func TestRunQuestionJoinsTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(message(`{"answer":"Globex and `, `Acme lead.","sources":[]}`))
	}))
	defer server.Close()

	provider := anthropic.NewProvider("test-key", "claude-sonnet-4-20250514", server.URL, testutil.NewMockCostService())
	resp, err := provider.RunQuestion(context.Background(), "Which CRM is best?")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", provider.GetProviderName())
	assert.Equal(t, "Globex and Acme lead.", resp.Response)
	assert.Equal(t, 20, resp.InputTokens)
	assert.Equal(t, 80, resp.OutputTokens)
}

func TestRunQuestionEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(message())
	}))
	defer server.Close()

	provider := anthropic.NewProvider("test-key", "claude-sonnet-4-20250514", server.URL, testutil.NewMockCostService())
	_, err := provider.RunQuestion(context.Background(), "q")
	assert.Error(t, err)
}
