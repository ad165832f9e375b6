package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

func TestExtractWholeWordMentions(t *testing.T) {
	extraction := services.NewMentionExtractor().Extract(
		"Acme is great, and acme_corp isn't Acme", []string{"Acme"}, nil)

	hit := extraction.MentionFor("Acme")
	require.NotNil(t, hit)
	assert.Equal(t, 2, hit.Count)
	assert.Equal(t, "Acme is great, and acme_corp isn't Acme", hit.Context)
}

func TestExtractMentionCounts(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		brand string
		want  int
	}{
		{"case insensitive", "ACME, acme and Acme.", "Acme", 3},
		{"no partial word", "Acmeville and Acmes", "Acme", 0},
		{"multi word brand", "Try Globex Corp today. globex corp wins.", "Globex Corp", 2},
		{"symbol edge", "C++ beats C. Also c++!", "C++", 2},
		{"non overlapping", "Acme Acme Acme", "Acme Acme", 1},
		{"dotted brand", "Use monday.com or Monday.com", "monday.com", 2},
	}

	extractor := services.NewMentionExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := extractor.Extract(tt.text, []string{tt.brand}, nil).MentionFor(tt.brand)
			if tt.want == 0 {
				assert.Nil(t, hit)
				return
			}
			require.NotNil(t, hit)
			assert.Equal(t, tt.want, hit.Count)
		})
	}
}

func TestExtractAbsentBrandsAndDuplicates(t *testing.T) {
	extraction := services.NewMentionExtractor().Extract(
		"Globex is the leader.", []string{"Acme", "Globex", "Globex", " "}, nil)

	require.Len(t, extraction.Mentions, 1)
	assert.Equal(t, "Globex", extraction.Mentions[0].Brand)
	assert.Nil(t, extraction.MentionFor("Acme"))
}

func TestExtractContextIsBounded(t *testing.T) {
	text := strings.Repeat("lorem ipsum ", 40) + "Acme" + strings.Repeat(" dolor sit", 40)
	hit := services.NewMentionExtractor().Extract(text, []string{"Acme"}, nil).MentionFor("Acme")
	require.NotNil(t, hit)

	assert.True(t, strings.HasPrefix(hit.Context, "…"))
	assert.True(t, strings.HasSuffix(hit.Context, "…"))
	assert.Contains(t, hit.Context, "Acme")
	assert.LessOrEqual(t, len(hit.Context), 2*120+len("Acme")+2*len("…"))
}

func TestExtractContextKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 200) + " Acme " + strings.Repeat("ü", 200)
	hit := services.NewMentionExtractor().Extract(text, []string{"Acme"}, nil).MentionFor("Acme")
	require.NotNil(t, hit)
	assert.True(t, strings.ToValidUTF8(hit.Context, "?") == hit.Context)
}

func TestExtractCitations(t *testing.T) {
	text := "See [Acme review](https://www.acme.com/review?utm_source=x) and https://globex.io/pricing/. " +
		"Also acme.com/review again, and a logo https://cdn.acme.com/logo.png. Broken: http://localhost/x"

	extraction := services.NewMentionExtractor().Extract(text, nil, []common.SourceRef{
		{URL: "https://g2.com/crm", Title: "Best CRM"},
	})

	urls := make([]string, 0, len(extraction.Citations))
	for _, c := range extraction.Citations {
		urls = append(urls, c.URL)
	}
	assert.Equal(t, []string{
		"https://g2.com/crm",
		"https://acme.com/review",
		"https://globex.io/pricing",
	}, urls)

	require.NotNil(t, extraction.Citations[0].Title)
	assert.Equal(t, "Best CRM", *extraction.Citations[0].Title)
	require.NotNil(t, extraction.Citations[1].Title)
	assert.Equal(t, "Acme review", *extraction.Citations[1].Title)
	assert.Equal(t, "acme.com", extraction.Citations[1].Domain)
	assert.Nil(t, extraction.Citations[2].Title)
}

func TestExtractNoCitations(t *testing.T) {
	extraction := services.NewMentionExtractor().Extract("Plain answer with no links.", []string{"Acme"}, nil)
	assert.Empty(t, extraction.Citations)
	assert.Empty(t, extraction.Mentions)
}
