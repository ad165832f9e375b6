package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
)

type promptRepo struct {
	db *database.Client
}

func NewPromptRepo(db *database.Client) interfaces.PromptRepository {
	return &promptRepo{db: db}
}

func (r *promptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	var prompt models.Prompt
	err := r.db.GetContext(ctx, &prompt,
		`SELECT id, session_id, prompt_text, ordinal, created_at FROM prompts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", id, err)
	}
	return &prompt, nil
}

func (r *promptRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Prompt, error) {
	prompts := []*models.Prompt{}
	err := r.db.SelectContext(ctx, &prompts,
		`SELECT id, session_id, prompt_text, ordinal, created_at FROM prompts WHERE session_id = $1 ORDER BY ordinal`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts for session %s: %w", sessionID, err)
	}
	return prompts, nil
}
