// services/scoring_service.go
package services

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

type scoringService struct{}

func NewScoringService() ScoringService {
	return &scoringService{}
}

// brandTotals are the per-brand aggregates every read model is built from
type brandTotals struct {
	mentionCount   int
	promptsPresent int
	citationShare  int
}

func (s *scoringService) Leaderboard(snapshot *SessionSnapshot) []*models.LeaderboardEntry {
	brands := uniqueBrands(snapshot.Session)
	totals := computeTotals(snapshot, brands)
	totalPrompts := len(snapshot.Prompts)

	entries := make([]*models.LeaderboardEntry, 0, len(brands))
	for _, brand := range brands {
		t := totals[brand]
		entries = append(entries, &models.LeaderboardEntry{
			Brand:           brand,
			VisibilityScore: percentage(t.promptsPresent, totalPrompts),
			CitationShare:   t.citationShare,
			MentionCount:    t.mentionCount,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.VisibilityScore != b.VisibilityScore {
			return a.VisibilityScore > b.VisibilityScore
		}
		if a.MentionCount != b.MentionCount {
			return a.MentionCount > b.MentionCount
		}
		return a.Brand < b.Brand
	})
	for i, entry := range entries {
		entry.Rank = i + 1
	}
	return entries
}

func (s *scoringService) CompetitiveMatrix(snapshot *SessionSnapshot) *models.CompetitiveMatrix {
	brands := uniqueBrands(snapshot.Session)
	shares := citationShares(snapshot.Citations, brands)

	type cellKey struct {
		promptID uuid.UUID
		brand    string
	}
	counts := make(map[cellKey]int)
	contexts := make(map[cellKey]*string)
	for _, m := range snapshot.Mentions {
		key := cellKey{m.PromptID, m.BrandName}
		counts[key] += m.MentionCount
		if contexts[key] == nil && m.Context != nil {
			contexts[key] = m.Context
		}
	}

	prompts := append([]*models.Prompt(nil), snapshot.Prompts...)
	sort.SliceStable(prompts, func(i, j int) bool { return prompts[i].Ordinal < prompts[j].Ordinal })

	stats := make(map[string]*models.BrandAggregatedStats, len(brands))
	for _, brand := range brands {
		stats[brand] = &models.BrandAggregatedStats{CitationShare: shares[brand]}
	}

	rows := make([]*models.PromptMatrixEntry, 0, len(prompts))
	for _, prompt := range prompts {
		row := &models.PromptMatrixEntry{
			PromptID:         prompt.ID,
			PromptText:       prompt.PromptText,
			Ordinal:          prompt.Ordinal,
			BrandPerformance: make(map[string]*models.BrandPerformance, len(brands)),
		}

		best, bestCount, tied := "", 0, false
		for _, brand := range brands {
			key := cellKey{prompt.ID, brand}
			count := counts[key]
			row.BrandPerformance[brand] = &models.BrandPerformance{
				MentionCount: count,
				IsPresent:    count > 0,
				Context:      contexts[key],
			}
			switch {
			case count > bestCount:
				best, bestCount, tied = brand, count, false
			case count == bestCount && count > 0:
				tied = true
			}
		}
		if bestCount > 0 && !tied {
			winner := best
			row.Winner = &winner
			row.BrandPerformance[best].IsWinner = true
		}

		// aggregated stats are derived from the row, never recounted
		for brand, perf := range row.BrandPerformance {
			st := stats[brand]
			st.TotalMentions += perf.MentionCount
			if perf.IsPresent {
				st.PromptsPresent++
			}
			if perf.IsWinner {
				st.PromptsWon++
			}
		}
		rows = append(rows, row)
	}

	for _, st := range stats {
		st.PromptsMissed = len(prompts) - st.PromptsPresent
	}

	return &models.CompetitiveMatrix{
		Matrix:          rows,
		AggregatedStats: stats,
		Brands:          brands,
		TotalPrompts:    len(prompts),
	}
}

func (s *scoringService) Metrics(snapshot *SessionSnapshot) models.MetricsSummary {
	brands := uniqueBrands(snapshot.Session)
	totals := computeTotals(snapshot, brands)

	summary := models.MetricsSummary{
		CitationShare:  make(map[string]int, len(brands)),
		TotalResponses: len(snapshot.Responses),
	}
	for _, brand := range brands {
		summary.CitationShare[brand] = totals[brand].citationShare
	}
	if snapshot.Session != nil {
		summary.OverallVisibility = percentage(totals[snapshot.Session.PrimaryBrand].promptsPresent, len(snapshot.Prompts))
	}
	return summary
}

func computeTotals(snapshot *SessionSnapshot, brands []string) map[string]*brandTotals {
	totals := make(map[string]*brandTotals, len(brands))
	for _, brand := range brands {
		totals[brand] = &brandTotals{}
	}

	validPrompts := make(map[uuid.UUID]bool, len(snapshot.Prompts))
	for _, p := range snapshot.Prompts {
		validPrompts[p.ID] = true
	}

	present := make(map[string]map[uuid.UUID]bool, len(brands))
	for _, m := range snapshot.Mentions {
		t, ok := totals[m.BrandName]
		if !ok || !validPrompts[m.PromptID] {
			continue
		}
		t.mentionCount += m.MentionCount
		if present[m.BrandName] == nil {
			present[m.BrandName] = make(map[uuid.UUID]bool)
		}
		present[m.BrandName][m.PromptID] = true
	}

	shares := citationShares(snapshot.Citations, brands)
	for _, brand := range brands {
		totals[brand].promptsPresent = len(present[brand])
		totals[brand].citationShare = shares[brand]
	}
	return totals
}

// citationShares attributes each citation to every brand it belongs to and
// returns each brand's share of all citations in whole percentage points.
func citationShares(citations []*models.Citation, brands []string) map[string]int {
	shares := make(map[string]int, len(brands))
	if len(citations) == 0 {
		for _, brand := range brands {
			shares[brand] = 0
		}
		return shares
	}

	matchers := newBrandMatchers(brands)
	attributed := make(map[string]int, len(brands))
	for _, c := range citations {
		label := registrableLabel(c)
		for _, m := range matchers {
			if m.owns(c, label) {
				attributed[m.brand]++
			}
		}
	}
	for _, brand := range brands {
		shares[brand] = percentage(attributed[brand], len(citations))
	}
	return shares
}

// brandMatcher holds the per-brand lookups used for citation attribution
type brandMatcher struct {
	brand   string
	key     string
	pattern *regexp.Regexp // nil for a blank brand
}

func newBrandMatchers(brands []string) []brandMatcher {
	matchers := make([]brandMatcher, 0, len(brands))
	for _, brand := range brands {
		m := brandMatcher{brand: brand, key: normalizeBrandKey(brand)}
		if strings.TrimSpace(brand) != "" {
			m.pattern = brandPattern(brand)
		}
		matchers = append(matchers, m)
	}
	return matchers
}

func (m brandMatcher) owns(c *models.Citation, label string) bool {
	if m.key != "" && label == m.key {
		return true
	}
	return m.pattern != nil && c.Title != nil && m.pattern.MatchString(*c.Title)
}

// registrableLabel returns the eTLD+1 of the citation minus its public
// suffix, reduced to lowercase alphanumerics ("www.acme-crm.co.uk" -> "acmecrm").
func registrableLabel(c *models.Citation) string {
	host := ""
	if c.Domain != nil {
		host = *c.Domain
	}
	if host == "" {
		if u, err := url.Parse(c.URL); err == nil {
			host = u.Hostname()
		}
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return ""
	}

	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(base)
	return normalizeBrandKey(strings.TrimSuffix(base, "."+suffix))
}

func normalizeBrandKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// uniqueBrands returns the session brands in order with duplicates and blanks removed
func uniqueBrands(session *models.TrackingSession) []string {
	if session == nil {
		return nil
	}
	source := session.Brands
	if len(source) == 0 {
		source = models.NewBrandList(session.PrimaryBrand, session.Competitors)
	}

	seen := make(map[string]bool, len(source))
	brands := make([]string, 0, len(source))
	for _, brand := range source {
		if strings.TrimSpace(brand) == "" || seen[brand] {
			continue
		}
		seen[brand] = true
		brands = append(brands, brand)
	}
	return brands
}

func percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
