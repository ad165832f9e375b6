package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
)

const responseColumns = `id, prompt_id, session_id, raw_response, platform, input_tokens, output_tokens, cost, created_at`

type responseRepo struct {
	db *database.Client
}

func NewResponseRepo(db *database.Client) interfaces.ResponseRepository {
	return &responseRepo{db: db}
}

func (r *responseRepo) CreateWithArtifacts(ctx context.Context, response *models.AIResponse, mentions []*models.BrandMention, citations []*models.Citation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO ai_responses (`+responseColumns+`)
		VALUES (:id, :prompt_id, :session_id, :raw_response, :platform, :input_tokens, :output_tokens, :cost, :created_at)`,
		response)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	if len(mentions) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO brand_mentions (id, response_id, session_id, prompt_id, brand_name, mention_count, context, created_at)
			VALUES (:id, :response_id, :session_id, :prompt_id, :brand_name, :mention_count, :context, :created_at)`,
			mentions)
		if err != nil {
			return fmt.Errorf("failed to insert mentions: %w", err)
		}
	}

	if len(citations) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO citations (id, response_id, session_id, url, title, domain, created_at)
			VALUES (:id, :response_id, :session_id, :url, :title, :domain, :created_at)`,
			citations)
		if err != nil {
			return fmt.Errorf("failed to insert citations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit response: %w", err)
	}
	return nil
}

func (r *responseRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AIResponse, error) {
	responses := []*models.AIResponse{}
	err := r.db.SelectContext(ctx, &responses,
		`SELECT `+responseColumns+` FROM ai_responses WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses for session %s: %w", sessionID, err)
	}
	return responses, nil
}

func (r *responseRepo) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.AIResponse, error) {
	responses := []*models.AIResponse{}
	err := r.db.SelectContext(ctx, &responses,
		`SELECT `+responseColumns+` FROM ai_responses WHERE prompt_id = $1 ORDER BY created_at, id`, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses for prompt %s: %w", promptID, err)
	}
	return responses, nil
}

func (r *responseRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM ai_responses WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("failed to count responses for session %s: %w", sessionID, err)
	}
	return count, nil
}
