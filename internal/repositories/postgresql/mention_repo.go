package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
)

const mentionColumns = `id, response_id, session_id, prompt_id, brand_name, mention_count, context, created_at`

type mentionRepo struct {
	db *database.Client
}

func NewMentionRepo(db *database.Client) interfaces.MentionRepository {
	return &mentionRepo{db: db}
}

func (r *mentionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.BrandMention, error) {
	mentions := []*models.BrandMention{}
	err := r.db.SelectContext(ctx, &mentions,
		`SELECT `+mentionColumns+` FROM brand_mentions WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions for session %s: %w", sessionID, err)
	}
	return mentions, nil
}

func (r *mentionRepo) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.BrandMention, error) {
	mentions := []*models.BrandMention{}
	err := r.db.SelectContext(ctx, &mentions,
		`SELECT `+mentionColumns+` FROM brand_mentions WHERE prompt_id = $1 ORDER BY created_at, id`, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions for prompt %s: %w", promptID, err)
	}
	return mentions, nil
}

type citationRepo struct {
	db *database.Client
}

func NewCitationRepo(db *database.Client) interfaces.CitationRepository {
	return &citationRepo{db: db}
}

func (r *citationRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Citation, error) {
	citations := []*models.Citation{}
	err := r.db.SelectContext(ctx, &citations,
		`SELECT id, response_id, session_id, url, title, domain, created_at FROM citations WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list citations for session %s: %w", sessionID, err)
	}
	return citations, nil
}
