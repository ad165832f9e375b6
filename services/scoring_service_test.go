package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
)

// snapshotBuilder assembles persisted rows for scoring tests
type snapshotBuilder struct {
	snapshot *services.SessionSnapshot
}

func newSnapshot(primary string, competitors []string, promptCount int) *snapshotBuilder {
	session := &models.TrackingSession{
		ID:           uuid.New(),
		Category:     "CRM software",
		PrimaryBrand: primary,
		Competitors:  competitors,
		Brands:       models.NewBrandList(primary, competitors),
		Status:       models.SessionStatusCompleted,
		TotalPrompts: promptCount,
		CreatedAt:    time.Now(),
	}
	b := &snapshotBuilder{snapshot: &services.SessionSnapshot{Session: session}}
	for i := 1; i <= promptCount; i++ {
		b.snapshot.Prompts = append(b.snapshot.Prompts, &models.Prompt{
			ID: uuid.New(), SessionID: session.ID, PromptText: "prompt", Ordinal: i,
		})
	}
	return b
}

func (b *snapshotBuilder) mention(ordinal int, brand string, count int) *snapshotBuilder {
	prompt := b.snapshot.Prompts[ordinal-1]
	response := &models.AIResponse{ID: uuid.New(), PromptID: prompt.ID, SessionID: b.snapshot.Session.ID, Platform: "openai"}
	b.snapshot.Responses = append(b.snapshot.Responses, response)
	context := brand + " context"
	b.snapshot.Mentions = append(b.snapshot.Mentions, &models.BrandMention{
		ID: uuid.New(), ResponseID: response.ID, SessionID: b.snapshot.Session.ID, PromptID: prompt.ID,
		BrandName: brand, MentionCount: count, Context: &context,
	})
	return b
}

func (b *snapshotBuilder) citation(rawURL, domain string, title *string) *snapshotBuilder {
	c := &models.Citation{ID: uuid.New(), SessionID: b.snapshot.Session.ID, URL: rawURL, Title: title}
	if domain != "" {
		c.Domain = &domain
	}
	b.snapshot.Citations = append(b.snapshot.Citations, c)
	return b
}

func TestLeaderboardEndToEndScenario(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex"}, 2).
		mention(1, "Acme", 1).
		mention(2, "Globex", 2).snapshot

	board := services.NewScoringService().Leaderboard(snapshot)
	require.Len(t, board, 2)

	assert.Equal(t, "Globex", board[0].Brand)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 50, board[0].VisibilityScore)
	assert.Equal(t, 2, board[0].MentionCount)

	assert.Equal(t, "Acme", board[1].Brand)
	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, 50, board[1].VisibilityScore)
	assert.Equal(t, 1, board[1].MentionCount)
}

func TestLeaderboardOrdering(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Zeta", "Beta", "Globex"}, 4).
		mention(1, "Acme", 1).mention(2, "Acme", 1).mention(3, "Acme", 1).
		mention(1, "Zeta", 3).
		mention(1, "Beta", 3).
		snapshot

	board := services.NewScoringService().Leaderboard(snapshot)
	require.Len(t, board, 4)

	// 3 of 4 prompts scores 75
	assert.Equal(t, "Acme", board[0].Brand)
	assert.Equal(t, 75, board[0].VisibilityScore)
	// full tie on visibility and mentions falls back to name
	assert.Equal(t, "Beta", board[1].Brand)
	assert.Equal(t, "Zeta", board[2].Brand)
	assert.Equal(t, "Globex", board[3].Brand)
	assert.Equal(t, 0, board[3].VisibilityScore)

	for i, entry := range board {
		assert.Equal(t, i+1, entry.Rank)
	}
}

func TestLeaderboardDeduplicatesBrands(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex", "Acme"}, 1).mention(1, "Acme", 1).snapshot

	board := services.NewScoringService().Leaderboard(snapshot)
	require.Len(t, board, 2)
	assert.Equal(t, 1, board[0].MentionCount)
}

func TestLeaderboardIsDeterministic(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex", "Initech"}, 3).
		mention(1, "Globex", 1).mention(2, "Initech", 1).snapshot

	scoring := services.NewScoringService()
	first := scoring.Leaderboard(snapshot)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scoring.Leaderboard(snapshot))
	}
}

func TestCompetitiveMatrixWinners(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex"}, 3).
		mention(1, "Acme", 2).mention(1, "Globex", 1). // Acme wins
		mention(2, "Acme", 1).mention(2, "Globex", 1). // tie, no winner
		snapshot // prompt 3: nobody mentioned

	matrix := services.NewScoringService().CompetitiveMatrix(snapshot)
	require.Len(t, matrix.Matrix, 3)
	assert.Equal(t, []string{"Acme", "Globex"}, matrix.Brands)
	assert.Equal(t, 3, matrix.TotalPrompts)

	row1 := matrix.Matrix[0]
	require.NotNil(t, row1.Winner)
	assert.Equal(t, "Acme", *row1.Winner)
	assert.True(t, row1.BrandPerformance["Acme"].IsWinner)
	assert.False(t, row1.BrandPerformance["Globex"].IsWinner)
	require.NotNil(t, row1.BrandPerformance["Acme"].Context)

	assert.Nil(t, matrix.Matrix[1].Winner)
	assert.False(t, matrix.Matrix[1].BrandPerformance["Acme"].IsWinner)

	row3 := matrix.Matrix[2]
	assert.Nil(t, row3.Winner)
	assert.False(t, row3.BrandPerformance["Globex"].IsPresent)
	assert.Nil(t, row3.BrandPerformance["Globex"].Context)

	acme := matrix.AggregatedStats["Acme"]
	assert.Equal(t, 3, acme.TotalMentions)
	assert.Equal(t, 1, acme.PromptsWon)
	assert.Equal(t, 2, acme.PromptsPresent)
	assert.Equal(t, 1, acme.PromptsMissed)

	globex := matrix.AggregatedStats["Globex"]
	assert.Equal(t, 0, globex.PromptsWon)
	assert.Equal(t, 2, globex.PromptsPresent)
}

func TestCompetitiveMatrixSumsAcrossPlatforms(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex"}, 1).
		mention(1, "Acme", 1).mention(1, "Acme", 1).mention(1, "Globex", 1).snapshot

	matrix := services.NewScoringService().CompetitiveMatrix(snapshot)
	assert.Equal(t, 2, matrix.Matrix[0].BrandPerformance["Acme"].MentionCount)
	require.NotNil(t, matrix.Matrix[0].Winner)
	assert.Equal(t, "Acme", *matrix.Matrix[0].Winner)
}

func TestCitationShare(t *testing.T) {
	globexTitle := "Globex pricing explained"
	snapshot := newSnapshot("Acme", []string{"Globex", "Initech"}, 1).
		citation("https://www.acme.com/features", "acme.com", nil).
		citation("https://blog.acme.co.uk/post", "blog.acme.co.uk", nil).
		citation("https://g2.com/compare", "g2.com", &globexTitle).
		citation("https://acme-tools.io", "", nil).
		snapshot

	board := services.NewScoringService().Leaderboard(snapshot)
	shares := map[string]int{}
	for _, entry := range board {
		shares[entry.Brand] = entry.CitationShare
	}

	assert.Equal(t, 50, shares["Acme"])   // acme.com and acme.co.uk; acme-tools is a different label
	assert.Equal(t, 25, shares["Globex"]) // attributed by title
	assert.Equal(t, 0, shares["Initech"])
}

func TestCitationShareWithoutCitations(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex"}, 1).mention(1, "Acme", 1).snapshot

	metrics := services.NewScoringService().Metrics(snapshot)
	assert.Equal(t, 0, metrics.CitationShare["Acme"])
	assert.Equal(t, 0, metrics.CitationShare["Globex"])
	assert.Equal(t, 100, metrics.OverallVisibility)
	assert.Equal(t, 1, metrics.TotalResponses)
}

func TestScoringEmptySession(t *testing.T) {
	snapshot := newSnapshot("Acme", []string{"Globex"}, 0).snapshot
	scoring := services.NewScoringService()

	board := scoring.Leaderboard(snapshot)
	require.Len(t, board, 2)
	assert.Equal(t, 0, board[0].VisibilityScore)

	matrix := scoring.CompetitiveMatrix(snapshot)
	assert.Empty(t, matrix.Matrix)
	assert.Equal(t, 0, matrix.AggregatedStats["Acme"].PromptsMissed)
}
