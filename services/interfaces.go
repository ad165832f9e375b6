// services/interfaces.go
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/memory"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/postgresql"
)

// RepositoryManager manages all repositories
type RepositoryManager struct {
	SessionRepo  interfaces.SessionRepository
	PromptRepo   interfaces.PromptRepository
	ResponseRepo interfaces.ResponseRepository
	MentionRepo  interfaces.MentionRepository
	CitationRepo interfaces.CitationRepository
}

// NewRepositoryManager creates a repository manager backed by postgres
func NewRepositoryManager(db *database.Client) *RepositoryManager {
	return &RepositoryManager{
		SessionRepo:  postgresql.NewSessionRepo(db),
		PromptRepo:   postgresql.NewPromptRepo(db),
		ResponseRepo: postgresql.NewResponseRepo(db),
		MentionRepo:  postgresql.NewMentionRepo(db),
		CitationRepo: postgresql.NewCitationRepo(db),
	}
}

// NewMemoryRepositoryManager creates a repository manager backed by an in-process store
func NewMemoryRepositoryManager(store *memory.Store) *RepositoryManager {
	return &RepositoryManager{
		SessionRepo:  store.Sessions(),
		PromptRepo:   store.Prompts(),
		ResponseRepo: store.Responses(),
		MentionRepo:  store.Mentions(),
		CitationRepo: store.Citations(),
	}
}

// SessionSnapshot is every persisted row of one session, the input of scoring
type SessionSnapshot struct {
	Session   *models.TrackingSession
	Prompts   []*models.Prompt
	Responses []*models.AIResponse
	Mentions  []*models.BrandMention
	Citations []*models.Citation
}

// StartTrackingRequest is the caller input of StartTracking
type StartTrackingRequest struct {
	Category      string   `json:"category"`
	MyBrand       string   `json:"myBrand"`
	Competitors   []string `json:"competitors"`
	CustomPrompts []string `json:"customPrompts,omitempty"`
}

type StartTrackingResult struct {
	SessionID    uuid.UUID `json:"sessionId"`
	TotalPrompts int       `json:"totalPrompts"`
}

// MentionHit is one brand's occurrences in one response
type MentionHit struct {
	Brand   string
	Count   int
	Context string
}

// ExtractedCitation is one source URL found in one response
type ExtractedCitation struct {
	URL    string
	Title  *string
	Domain string
}

// Extraction is the result of scanning one response
type Extraction struct {
	Mentions  []*MentionHit // in brand input order
	Citations []*ExtractedCitation
}

// MentionFor returns the hit for brand, or nil when it was not mentioned
func (e *Extraction) MentionFor(brand string) *MentionHit {
	for _, m := range e.Mentions {
		if m.Brand == brand {
			return m
		}
	}
	return nil
}

type PromptGenerator interface {
	Generate(category string, customPrompts []string) []string
}

type MentionExtractor interface {
	Extract(responseText string, brands []string, structured []common.SourceRef) *Extraction
}

type ScoringService interface {
	Leaderboard(snapshot *SessionSnapshot) []*models.LeaderboardEntry
	CompetitiveMatrix(snapshot *SessionSnapshot) *models.CompetitiveMatrix
	Metrics(snapshot *SessionSnapshot) models.MetricsSummary
}

// TrackingService owns the session lifecycle. The first group of methods
// serves callers, the second is invoked by queue workers.
type TrackingService interface {
	StartTracking(ctx context.Context, req StartTrackingRequest) (*StartTrackingResult, error)
	Resubmit(ctx context.Context, sessionID uuid.UUID) error
	GetSessionStatus(ctx context.Context, sessionID uuid.UUID) (*models.SessionStatusSnapshot, error)
	StopTracking(ctx context.Context, sessionID uuid.UUID) (*models.TrackingSession, error)
	GetResults(ctx context.Context, sessionID uuid.UUID) (*models.TrackingResults, error)
	GetLeaderboard(ctx context.Context, sessionID uuid.UUID) ([]*models.LeaderboardEntry, error)
	GetCompetitiveMatrix(ctx context.Context, sessionID uuid.UUID) (*models.CompetitiveMatrix, error)
	GetPrompts(ctx context.Context, sessionID uuid.UUID) ([]*models.Prompt, error)
	GetPromptDetail(ctx context.Context, sessionID, promptID uuid.UUID) (*models.PromptDetail, error)
	ListRecent(ctx context.Context, limit int) ([]*models.TrackingSession, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	SearchResponses(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]*models.ResponseHit, error)

	ExecuteSession(ctx context.Context, sessionID uuid.UUID, attempt int) error
	FailSession(ctx context.Context, sessionID uuid.UUID, cause error) error
	ReapStaleSessions(ctx context.Context) (int, error)
}

// FailureNotifier is told when a session ends FAILED for a reason other than a stop request
type FailureNotifier interface {
	NotifySessionFailed(ctx context.Context, session *models.TrackingSession, cause error)
}
