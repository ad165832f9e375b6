package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

// Single-row lookups return (nil, nil) when the row does not exist.

type SessionRepository interface {
	// CreateWithPrompts stores the session and its prompts atomically
	CreateWithPrompts(ctx context.Context, session *models.TrackingSession, prompts []*models.Prompt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrackingSession, error)
	ListRecent(ctx context.Context, limit int) ([]*models.TrackingSession, error)
	// ListByStatusBefore returns sessions in status created before cutoff, oldest first
	ListByStatusBefore(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]*models.TrackingSession, error)
	// TransitionStatus moves the session to `to` only if its current status is
	// one of `from`. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, completedAt *time.Time) (bool, error)
	// Delete removes the session and everything that references it
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type PromptRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Prompt, error)
}

type ResponseRepository interface {
	// CreateWithArtifacts stores a response with its mentions and citations atomically
	CreateWithArtifacts(ctx context.Context, response *models.AIResponse, mentions []*models.BrandMention, citations []*models.Citation) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AIResponse, error)
	ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.AIResponse, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

type MentionRepository interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.BrandMention, error)
	ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.BrandMention, error)
}

type CitationRepository interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Citation, error)
}
