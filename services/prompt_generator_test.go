package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

func TestGenerateBasePrompts(t *testing.T) {
	prompts := services.NewPromptGenerator().Generate("CRM software", nil)

	assert.Equal(t, []string{
		"What are the top rated CRM software?",
		"Which CRM software offers the most features while remaining cost-effective?",
	}, prompts)
}

func TestGenerateAppendsCustomPrompts(t *testing.T) {
	prompts := services.NewPromptGenerator().Generate("  CRM software ", []string{
		"Is Acme good for startups?",
		"   ",
		"",
		" Compare Acme and Globex ",
	})

	assert.Len(t, prompts, 4)
	assert.Equal(t, "What are the top rated CRM software?", prompts[0])
	assert.Equal(t, "Is Acme good for startups?", prompts[2])
	assert.Equal(t, "Compare Acme and Globex", prompts[3])
}

func TestGenerateIsDeterministic(t *testing.T) {
	gen := services.NewPromptGenerator()
	assert.Equal(t, gen.Generate("laptops", []string{"x"}), gen.Generate("laptops", []string{"x"}))
}
