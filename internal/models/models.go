// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a tracking session
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusRunning   SessionStatus = "RUNNING"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// TrackingSession is one tracking run for a category/brand/competitor set
type TrackingSession struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Category     string        `json:"category" db:"category"`
	PrimaryBrand string        `json:"primaryBrand" db:"primary_brand"`
	Competitors  []string      `json:"competitors" db:"competitors"`
	Brands       []string      `json:"brands" db:"brands"` // primary first, then competitors in submission order
	Status       SessionStatus `json:"status" db:"status"`
	TotalPrompts int           `json:"totalPrompts" db:"total_prompts"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty" db:"completed_at"`
}

// NewBrandList returns the primary brand followed by the competitors, unchanged.
func NewBrandList(primaryBrand string, competitors []string) []string {
	brands := make([]string, 0, len(competitors)+1)
	brands = append(brands, primaryBrand)
	brands = append(brands, competitors...)
	return brands
}

// Prompt is a single question dispatched to the AI providers
type Prompt struct {
	ID         uuid.UUID `json:"id" db:"id"`
	SessionID  uuid.UUID `json:"sessionId" db:"session_id"`
	PromptText string    `json:"promptText" db:"prompt_text"`
	Ordinal    int       `json:"ordinal" db:"ordinal"` // 1-based, creation order
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// AIResponse is the raw text one provider returned for one prompt
type AIResponse struct {
	ID           uuid.UUID `json:"id" db:"id"`
	PromptID     uuid.UUID `json:"promptId" db:"prompt_id"`
	SessionID    uuid.UUID `json:"sessionId" db:"session_id"`
	RawResponse  string    `json:"rawResponse" db:"raw_response"`
	Platform     string    `json:"platform" db:"platform"`
	InputTokens  int       `json:"inputTokens" db:"input_tokens"`
	OutputTokens int       `json:"outputTokens" db:"output_tokens"`
	Cost         float64   `json:"cost" db:"cost"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// BrandMention counts the occurrences of one brand in one response
type BrandMention struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ResponseID   uuid.UUID `json:"responseId" db:"response_id"`
	SessionID    uuid.UUID `json:"sessionId" db:"session_id"`
	PromptID     uuid.UUID `json:"promptId" db:"prompt_id"`
	BrandName    string    `json:"brandName" db:"brand_name"`
	MentionCount int       `json:"mentionCount" db:"mention_count"`
	Context      *string   `json:"context" db:"context"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Citation is a source URL detected in one response
type Citation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ResponseID uuid.UUID `json:"responseId" db:"response_id"`
	SessionID  uuid.UUID `json:"sessionId" db:"session_id"`
	URL        string    `json:"url" db:"url"`
	Title      *string   `json:"title" db:"title"`
	Domain     *string   `json:"domain" db:"domain"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// LeaderboardEntry is one ranked brand row
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	Brand           string `json:"brand"`
	VisibilityScore int    `json:"visibilityScore"`
	CitationShare   int    `json:"citationShare"`
	MentionCount    int    `json:"mentionCount"`
}

// BrandPerformance is one brand's cell in a competitive matrix row
type BrandPerformance struct {
	MentionCount int     `json:"mentionCount"`
	IsPresent    bool    `json:"isPresent"`
	IsWinner     bool    `json:"isWinner"`
	Context      *string `json:"context"`
}

// PromptMatrixEntry is one prompt row of the competitive matrix
type PromptMatrixEntry struct {
	PromptID         uuid.UUID                    `json:"promptId"`
	PromptText       string                       `json:"promptText"`
	Ordinal          int                          `json:"ordinal"`
	BrandPerformance map[string]*BrandPerformance `json:"brandPerformance"`
	Winner           *string                      `json:"winner"`
}

// BrandAggregatedStats is derived from the matrix rows of one brand
type BrandAggregatedStats struct {
	TotalMentions  int `json:"totalMentions"`
	PromptsWon     int `json:"promptsWon"`
	PromptsPresent int `json:"promptsPresent"`
	PromptsMissed  int `json:"promptsMissed"`
	CitationShare  int `json:"citationShare"`
}

type CompetitiveMatrix struct {
	Matrix          []*PromptMatrixEntry             `json:"matrix"`
	AggregatedStats map[string]*BrandAggregatedStats `json:"aggregatedStats"`
	Brands          []string                         `json:"brands"`
	TotalPrompts    int                              `json:"totalPrompts"`
}

type MetricsSummary struct {
	OverallVisibility int            `json:"overallVisibility"`
	CitationShare     map[string]int `json:"citationShare"`
	TotalResponses    int            `json:"totalResponses"`
}

// SessionStatusSnapshot is the polling view of a session
type SessionStatusSnapshot struct {
	SessionID          uuid.UUID     `json:"sessionId"`
	Status             SessionStatus `json:"status"`
	Progress           float64       `json:"progress"`
	TotalPrompts       int           `json:"totalPrompts"`
	CompletedResponses int           `json:"completedResponses"`
	CreatedAt          time.Time     `json:"createdAt"`
	CompletedAt        *time.Time    `json:"completedAt,omitempty"`
}

type TrackingResults struct {
	Session   *TrackingSession `json:"session"`
	Metrics   MetricsSummary   `json:"metrics"`
	Prompts   []*Prompt        `json:"prompts"`
	Responses []*AIResponse    `json:"responses"`
	Mentions  []*BrandMention  `json:"mentions"`
	Citations []*Citation      `json:"citations"`
}

// ResponseWithMentions is a response together with its detected mentions
type ResponseWithMentions struct {
	*AIResponse
	Mentions []*BrandMention `json:"mentions"`
}

type PromptDetail struct {
	Prompt    *Prompt                 `json:"prompt"`
	Responses []*ResponseWithMentions `json:"responses"`
}

// ResponseHit is one keyword search match over collected responses
type ResponseHit struct {
	ResponseID uuid.UUID `json:"responseId"`
	PromptID   uuid.UUID `json:"promptId"`
	Platform   string    `json:"platform"`
	Snippet    string    `json:"snippet"`
}
