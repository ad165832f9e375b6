package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

func setupMockDB(t *testing.T) (*database.Client, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &database.Client{DB: sqlx.NewDb(mockDB, "postgres")}, mock
}

func sampleSession() *models.TrackingSession {
	return &models.TrackingSession{
		ID:           uuid.New(),
		Category:     "CRM tools",
		PrimaryBrand: "Acme",
		Competitors:  []string{"Globex"},
		Brands:       []string{"Acme", "Globex"},
		Status:       models.SessionStatusPending,
		TotalPrompts: 2,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCreateWithPromptsCommits(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepo(db)
	session := sampleSession()
	prompts := []*models.Prompt{
		{ID: uuid.New(), SessionID: session.ID, PromptText: "p1", Ordinal: 1, CreatedAt: session.CreatedAt},
		{ID: uuid.New(), SessionID: session.ID, PromptText: "p2", Ordinal: 2, CreatedAt: session.CreatedAt},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tracking_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO prompts`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithPrompts(context.Background(), session, prompts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithPromptsRollsBackOnPromptFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepo(db)
	session := sampleSession()
	prompts := []*models.Prompt{{ID: uuid.New(), SessionID: session.ID, PromptText: "p1", Ordinal: 1}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tracking_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO prompts`).WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.CreateWithPrompts(context.Background(), session, prompts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert prompts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDScansArrays(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepo(db)
	id := uuid.New()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "category", "primary_brand", "competitors", "brands", "status", "total_prompts", "created_at", "completed_at"}).
		AddRow(id.String(), "CRM tools", "Acme", []byte("{Globex,Initech}"), []byte("{Acme,Globex,Initech}"), "RUNNING", 2, created, nil)
	mock.ExpectQuery(`SELECT .+ FROM tracking_sessions WHERE id = \$1`).WithArgs(id).WillReturnRows(rows)

	session, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, []string{"Globex", "Initech"}, session.Competitors)
	assert.Equal(t, []string{"Acme", "Globex", "Initech"}, session.Brands)
	assert.Equal(t, models.SessionStatusRunning, session.Status)
	assert.Nil(t, session.CompletedAt)
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepo(db)
	id := uuid.New()

	mock.ExpectQuery(`FROM tracking_sessions WHERE id`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	session, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, session)
}

func TestTransitionStatusReportsCompareAndSet(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"transitioned", 1, true},
		{"status did not match", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewSessionRepo(db)
			id := uuid.New()

			mock.ExpectExec(`UPDATE tracking_sessions\s+SET status = \$2`).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.TransitionStatus(context.Background(), id,
				[]models.SessionStatus{models.SessionStatusPending}, models.SessionStatusRunning, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteSession(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepo(db)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM tracking_sessions WHERE id = \$1`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, deleted)

	mock.ExpectExec(`DELETE FROM tracking_sessions`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateWithArtifactsSkipsEmptyBatches(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewResponseRepo(db)
	response := &models.AIResponse{ID: uuid.New(), PromptID: uuid.New(), SessionID: uuid.New(), RawResponse: "none", Platform: "openai"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ai_responses`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithArtifacts(context.Background(), response, nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithArtifactsWritesAllRows(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewResponseRepo(db)
	response := &models.AIResponse{ID: uuid.New(), PromptID: uuid.New(), SessionID: uuid.New(), RawResponse: "Acme", Platform: "openai"}
	mentions := []*models.BrandMention{{ID: uuid.New(), ResponseID: response.ID, SessionID: response.SessionID, PromptID: response.PromptID, BrandName: "Acme", MentionCount: 1}}
	domain := "acme.com"
	citations := []*models.Citation{{ID: uuid.New(), ResponseID: response.ID, SessionID: response.SessionID, URL: "https://acme.com", Domain: &domain}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ai_responses`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO brand_mentions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO citations`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithArtifacts(context.Background(), response, mentions, citations))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBySession(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewResponseRepo(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ai_responses`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountBySession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListPromptsOrdered(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPromptRepo(db)
	sessionID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "session_id", "prompt_text", "ordinal", "created_at"}).
		AddRow(uuid.New().String(), sessionID.String(), "first", 1, now).
		AddRow(uuid.New().String(), sessionID.String(), "second", 2, now)
	mock.ExpectQuery(`FROM prompts WHERE session_id = \$1 ORDER BY ordinal`).WithArgs(sessionID).WillReturnRows(rows)

	prompts, err := repo.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "first", prompts[0].PromptText)
	assert.Equal(t, 2, prompts[1].Ordinal)
}
