package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
)

const sessionColumns = `id, category, primary_brand, competitors, brands, status, total_prompts, created_at, completed_at`

// sessionRow maps text[] columns through pq.StringArray
type sessionRow struct {
	ID           uuid.UUID            `db:"id"`
	Category     string               `db:"category"`
	PrimaryBrand string               `db:"primary_brand"`
	Competitors  pq.StringArray       `db:"competitors"`
	Brands       pq.StringArray       `db:"brands"`
	Status       models.SessionStatus `db:"status"`
	TotalPrompts int                  `db:"total_prompts"`
	CreatedAt    time.Time            `db:"created_at"`
	CompletedAt  *time.Time           `db:"completed_at"`
}

func (r sessionRow) toModel() *models.TrackingSession {
	return &models.TrackingSession{
		ID:           r.ID,
		Category:     r.Category,
		PrimaryBrand: r.PrimaryBrand,
		Competitors:  []string(r.Competitors),
		Brands:       []string(r.Brands),
		Status:       r.Status,
		TotalPrompts: r.TotalPrompts,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

func toSessionRow(s *models.TrackingSession) sessionRow {
	return sessionRow{
		ID:           s.ID,
		Category:     s.Category,
		PrimaryBrand: s.PrimaryBrand,
		Competitors:  pq.StringArray(s.Competitors),
		Brands:       pq.StringArray(s.Brands),
		Status:       s.Status,
		TotalPrompts: s.TotalPrompts,
		CreatedAt:    s.CreatedAt,
		CompletedAt:  s.CompletedAt,
	}
}

type sessionRepo struct {
	db *database.Client
}

func NewSessionRepo(db *database.Client) interfaces.SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) CreateWithPrompts(ctx context.Context, session *models.TrackingSession, prompts []*models.Prompt) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO tracking_sessions (`+sessionColumns+`)
		VALUES (:id, :category, :primary_brand, :competitors, :brands, :status, :total_prompts, :created_at, :completed_at)`,
		toSessionRow(session))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if len(prompts) > 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO prompts (id, session_id, prompt_text, ordinal, created_at)
			VALUES (:id, :session_id, :prompt_text, :ordinal, :created_at)`, prompts)
		if err != nil {
			return fmt.Errorf("failed to insert prompts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrackingSession, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (r *sessionRepo) ListRecent(ctx context.Context, limit int) ([]*models.TrackingSession, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM tracking_sessions ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}
	return toSessionModels(rows), nil
}

func (r *sessionRepo) ListByStatusBefore(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]*models.TrackingSession, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM tracking_sessions WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s sessions: %w", status, err)
	}
	return toSessionModels(rows), nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, completedAt *time.Time) (bool, error) {
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE tracking_sessions
		SET status = $2, completed_at = COALESCE($3, completed_at)
		WHERE id = $1 AND status = ANY($4)`,
		id, to, completedAt, pq.Array(fromStrings))
	if err != nil {
		return false, fmt.Errorf("failed to transition session %s to %s: %w", id, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tracking_sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func toSessionModels(rows []sessionRow) []*models.TrackingSession {
	out := make([]*models.TrackingSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
