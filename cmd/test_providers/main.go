package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

// Runs the prompts of one category against every configured provider and
// prints what the mention extractor finds, without touching storage or the queue.
func main() {
	category := flag.String("category", "project management software", "category to generate prompts for")
	brands := flag.String("brands", "", "comma separated brands to look for, first one is yours")
	save := flag.Bool("save", false, "write each raw response to a json file")
	flag.Parse()

	fmt.Println("🧪 AI Provider Test Script")
	fmt.Println(strings.Repeat("=", 50))

	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️  No .env file found, using environment variables")
	} else {
		fmt.Println("✅ Loaded .env file")
	}
	fmt.Println()

	cfg := config.Load()

	aiProviders, err := providers.NewFromConfig(cfg, common.NewCostService())
	if err != nil {
		fmt.Printf("❌ Failed to create providers: %v\n", err)
		os.Exit(1)
	}

	prompts := services.NewPromptGenerator().Generate(*category, nil)
	brandList := splitBrands(*brands)

	fmt.Println("📋 Test Configuration:")
	fmt.Printf("  - Category: %s\n", *category)
	fmt.Printf("  - Prompts: %d\n", len(prompts))
	fmt.Printf("  - Brands: %s\n", strings.Join(brandList, ", "))
	fmt.Println()

	extractor := services.NewMentionExtractor()
	for _, provider := range aiProviders {
		testProvider(context.Background(), provider, prompts, brandList, extractor, *save)
	}
}

func testProvider(ctx context.Context, provider providers.AIProvider, prompts, brands []string, extractor services.MentionExtractor, save bool) {
	fmt.Printf("\n🎯 Testing Provider: %s\n", provider.GetProviderName())
	fmt.Println(strings.Repeat("-", 60))

	totalCost := 0.0
	successCount := 0
	startTime := time.Now()

	for i, prompt := range prompts {
		fmt.Printf("Prompt %d: %s\n", i+1, truncate(prompt, 60))

		callStart := time.Now()
		resp, err := provider.RunQuestion(ctx, prompt)
		if err != nil {
			fmt.Printf("  ❌ Failed after %v: %v\n\n", time.Since(callStart), err)
			continue
		}
		successCount++
		totalCost += resp.Cost

		fmt.Printf("  ✅ Answered in %v\n", time.Since(callStart))
		fmt.Printf("  Response: %s\n", truncate(resp.Response, 100))
		fmt.Printf("  Tokens: %d input, %d output\n", resp.InputTokens, resp.OutputTokens)
		fmt.Printf("  Cost: $%.6f\n", resp.Cost)

		extraction := extractor.Extract(resp.Response, brands, resp.Sources)
		for _, m := range extraction.Mentions {
			fmt.Printf("  🏷️  %s x%d: %s\n", m.Brand, m.Count, truncate(m.Context, 80))
		}
		for _, c := range extraction.Citations {
			fmt.Printf("  🔗 %s (%s)\n", c.URL, c.Domain)
		}
		fmt.Println()

		if save {
			saveResponse(provider.GetProviderName(), i+1, resp)
		}
	}

	fmt.Printf("💰 Total Cost: $%.6f\n", totalCost)
	fmt.Printf("✅ Success Rate: %d/%d\n", successCount, len(prompts))
	fmt.Printf("⏱️  Total Time: %v\n", time.Since(startTime))
}

func splitBrands(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func saveResponse(platform string, n int, resp *common.AIResponse) {
	filename := fmt.Sprintf("%s_%d.json", platform, n)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Printf("  ❌ Failed to marshal response %d: %v\n", n, err)
		return
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		fmt.Printf("  ❌ Failed to save %s: %v\n", filename, err)
		return
	}
	fmt.Printf("  💾 Saved: %s\n", filename)
}
