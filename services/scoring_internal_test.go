package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

func strPtr(s string) *string { return &s }

func TestNewBrandMatchersCompilesOncePerBrand(t *testing.T) {
	matchers := newBrandMatchers([]string{"Acme", "C++ Tools", " "})
	require.Len(t, matchers, 3)

	assert.Equal(t, "acme", matchers[0].key)
	assert.NotNil(t, matchers[0].pattern)
	assert.NotNil(t, matchers[1].pattern)
	assert.Nil(t, matchers[2].pattern, "blank brands never match by title")
	assert.False(t, matchers[2].owns(&models.Citation{URL: "https://example.com", Title: strPtr(" ")}, "example"))
}

func TestCitationSharesReusesMatchers(t *testing.T) {
	citations := []*models.Citation{
		{URL: "https://www.acme.com/pricing"},
		{URL: "https://review.example.org/a", Title: strPtr("Acme vs Globex in 2025")},
		{URL: "https://blog.example.net/b", Title: strPtr("Acmeville travel guide")},
		{URL: "https://globex.co.uk/about"},
	}

	shares := citationShares(citations, []string{"Acme", "Globex", "Initech"})

	assert.Equal(t, 50, shares["Acme"])
	assert.Equal(t, 50, shares["Globex"])
	assert.Equal(t, 0, shares["Initech"])
}
