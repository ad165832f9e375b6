package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStructuredAnswer(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantAnswer  string
		wantSources int
	}{
		{
			name:        "plain json",
			raw:         `{"answer":"Acme leads the market.","sources":[{"url":"https://acme.com/review","title":"Acme review"}]}`,
			wantAnswer:  "Acme leads the market.",
			wantSources: 1,
		},
		{
			name:        "fenced json",
			raw:         "```json\n{\"answer\":\"Globex is cheaper.\",\"sources\":[]}\n```",
			wantAnswer:  "Globex is cheaper.",
			wantSources: 0,
		},
		{
			name:        "blank source urls dropped",
			raw:         `{"answer":"x","sources":[{"url":"  ","title":"none"},{"url":"https://a.io","title":""}]}`,
			wantAnswer:  "x",
			wantSources: 1,
		},
		{
			name:        "free text falls back",
			raw:         "Acme and Globex are both popular.",
			wantAnswer:  "Acme and Globex are both popular.",
			wantSources: 0,
		},
		{
			name:        "json without answer falls back",
			raw:         `{"key_points":["a"]}`,
			wantAnswer:  `{"key_points":["a"]}`,
			wantSources: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, sources := ParseStructuredAnswer(tt.raw)
			assert.Equal(t, tt.wantAnswer, answer)
			assert.Len(t, sources, tt.wantSources)
		})
	}
}
