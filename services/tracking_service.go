// services/tracking_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/apperrors"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/search"
)

// ErrAllPromptsFailed is returned by ExecuteSession when every provider call
// of the attempt failed. The job is retried.
var ErrAllPromptsFailed = errors.New("all prompts failed")

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
	defaultSearchLimit = 10
)

var activeStatuses = []models.SessionStatus{models.SessionStatusPending, models.SessionStatusRunning}

type trackingService struct {
	cfg       *config.Config
	repos     *RepositoryManager
	generator PromptGenerator
	extractor MentionExtractor
	scoring   ScoringService
	providers []providers.AIProvider
	jobs      queue.Queue
	index     search.ResponseIndex
	notifier  FailureNotifier
	now       func() time.Time
}

func NewTrackingService(
	cfg *config.Config,
	repos *RepositoryManager,
	aiProviders []providers.AIProvider,
	jobs queue.Queue,
	index search.ResponseIndex,
	notifier FailureNotifier,
) TrackingService {
	if index == nil {
		index = search.NopIndex{}
	}
	return &trackingService{
		cfg:       cfg,
		repos:     repos,
		generator: NewPromptGenerator(),
		extractor: NewMentionExtractor(),
		scoring:   NewScoringService(),
		providers: aiProviders,
		jobs:      jobs,
		index:     index,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *trackingService) StartTracking(ctx context.Context, req StartTrackingRequest) (*StartTrackingResult, error) {
	category := strings.TrimSpace(req.Category)
	myBrand := strings.TrimSpace(req.MyBrand)
	if category == "" {
		return nil, apperrors.NewValidationError("category is required")
	}
	if myBrand == "" {
		return nil, apperrors.NewValidationError("myBrand is required")
	}
	var competitors []string
	for _, c := range req.Competitors {
		if c = strings.TrimSpace(c); c != "" {
			competitors = append(competitors, c)
		}
	}
	if len(competitors) == 0 {
		return nil, apperrors.NewValidationError("at least one competitor is required")
	}

	texts := s.generator.Generate(category, req.CustomPrompts)
	now := s.now()
	session := &models.TrackingSession{
		ID:           uuid.New(),
		Category:     category,
		PrimaryBrand: myBrand,
		Competitors:  competitors,
		Brands:       models.NewBrandList(myBrand, competitors),
		Status:       models.SessionStatusPending,
		TotalPrompts: len(texts),
		CreatedAt:    now,
	}
	prompts := make([]*models.Prompt, 0, len(texts))
	for i, text := range texts {
		prompts = append(prompts, &models.Prompt{
			ID:         uuid.New(),
			SessionID:  session.ID,
			PromptText: text,
			Ordinal:    i + 1,
			CreatedAt:  now,
		})
	}

	if err := s.repos.SessionRepo.CreateWithPrompts(ctx, session, prompts); err != nil {
		return nil, apperrors.NewInternalError("failed to create tracking session", err)
	}
	metrics.SessionsTotal.WithLabelValues("started").Inc()

	logger := sessionLogger(session.ID)
	logger.Info().
		Str("category", category).
		Int("brands", len(session.Brands)).
		Int("prompts", len(prompts)).
		Msg("tracking session created")

	if err := s.enqueue(ctx, session.ID); err != nil {
		if failErr := s.FailSession(context.WithoutCancel(ctx), session.ID, err); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to mark unqueued session as failed")
		}
		return nil, apperrors.NewExternalError("failed to queue tracking session", err)
	}

	return &StartTrackingResult{SessionID: session.ID, TotalPrompts: session.TotalPrompts}, nil
}

func (s *trackingService) Resubmit(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return apperrors.NewValidationError(fmt.Sprintf("Session is already %s", session.Status))
	}
	if err := s.enqueue(ctx, sessionID); err != nil {
		return apperrors.NewExternalError("failed to queue tracking session", err)
	}
	return nil
}

func (s *trackingService) enqueue(ctx context.Context, sessionID uuid.UUID) error {
	created, err := s.jobs.Enqueue(ctx, queue.NewJob(sessionID))
	if err != nil {
		return err
	}
	if !created {
		sessionLogger(sessionID).Info().Msg("job already queued, skipping duplicate")
	}
	return nil
}

func (s *trackingService) GetSessionStatus(ctx context.Context, sessionID uuid.UUID) (*models.SessionStatusSnapshot, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	completed, err := s.repos.ResponseRepo.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to count responses", err)
	}

	return &models.SessionStatusSnapshot{
		SessionID:          session.ID,
		Status:             session.Status,
		Progress:           progress(completed, session.TotalPrompts),
		TotalPrompts:       session.TotalPrompts,
		CompletedResponses: completed,
		CreatedAt:          session.CreatedAt,
		CompletedAt:        session.CompletedAt,
	}, nil
}

// progress is completed/total clamped to [0,1]. Several providers answer
// each prompt, so the raw ratio can exceed 1.
func progress(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(completed) / float64(total)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

func (s *trackingService) StopTracking(ctx context.Context, sessionID uuid.UUID) (*models.TrackingSession, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	now := s.now()
	changed, err := s.repos.SessionRepo.TransitionStatus(ctx, sessionID, activeStatuses, models.SessionStatusFailed, &now)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to stop session", err)
	}
	if changed {
		metrics.SessionsTotal.WithLabelValues("stopped").Inc()
		sessionLogger(sessionID).Info().Msg("tracking session stopped")
	}
	return s.getSession(ctx, sessionID)
}

func (s *trackingService) GetResults(ctx context.Context, sessionID uuid.UUID) (*models.TrackingResults, error) {
	snapshot, err := s.terminalSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.TrackingResults{
		Session:   snapshot.Session,
		Metrics:   s.scoring.Metrics(snapshot),
		Prompts:   snapshot.Prompts,
		Responses: snapshot.Responses,
		Mentions:  snapshot.Mentions,
		Citations: snapshot.Citations,
	}, nil
}

func (s *trackingService) GetLeaderboard(ctx context.Context, sessionID uuid.UUID) ([]*models.LeaderboardEntry, error) {
	snapshot, err := s.terminalSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.scoring.Leaderboard(snapshot), nil
}

func (s *trackingService) GetCompetitiveMatrix(ctx context.Context, sessionID uuid.UUID) (*models.CompetitiveMatrix, error) {
	snapshot, err := s.terminalSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.scoring.CompetitiveMatrix(snapshot), nil
}

func (s *trackingService) GetPrompts(ctx context.Context, sessionID uuid.UUID) ([]*models.Prompt, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	prompts, err := s.repos.PromptRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list prompts", err)
	}
	return prompts, nil
}

func (s *trackingService) GetPromptDetail(ctx context.Context, sessionID, promptID uuid.UUID) (*models.PromptDetail, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	prompt, err := s.repos.PromptRepo.GetByID(ctx, promptID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get prompt", err)
	}
	if prompt == nil || prompt.SessionID != sessionID {
		return nil, apperrors.NewNotFoundError("Prompt not found")
	}

	responses, err := s.repos.ResponseRepo.ListByPrompt(ctx, promptID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list responses", err)
	}
	mentions, err := s.repos.MentionRepo.ListByPrompt(ctx, promptID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list mentions", err)
	}

	byResponse := make(map[uuid.UUID][]*models.BrandMention)
	for _, m := range mentions {
		byResponse[m.ResponseID] = append(byResponse[m.ResponseID], m)
	}
	detail := &models.PromptDetail{Prompt: prompt, Responses: make([]*models.ResponseWithMentions, 0, len(responses))}
	for _, resp := range responses {
		rm := byResponse[resp.ID]
		if rm == nil {
			rm = []*models.BrandMention{}
		}
		detail.Responses = append(detail.Responses, &models.ResponseWithMentions{AIResponse: resp, Mentions: rm})
	}
	return detail, nil
}

func (s *trackingService) ListRecent(ctx context.Context, limit int) ([]*models.TrackingSession, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	sessions, err := s.repos.SessionRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list sessions", err)
	}
	return sessions, nil
}

func (s *trackingService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	deleted, err := s.repos.SessionRepo.Delete(ctx, sessionID)
	if err != nil {
		return apperrors.NewInternalError("failed to delete session", err)
	}
	if !deleted {
		return apperrors.NewNotFoundError("Session not found")
	}
	if err := s.index.DeleteSession(ctx, sessionID); err != nil {
		sessionLogger(sessionID).Warn().Err(err).Msg("failed to remove indexed responses")
	}
	sessionLogger(sessionID).Info().Msg("tracking session deleted")
	return nil
}

func (s *trackingService) SearchResponses(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]*models.ResponseHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("query is required")
	}
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	hits, err := s.index.Search(ctx, sessionID, query, limit)
	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, search.ErrDisabled) {
		sessionLogger(sessionID).Warn().Err(err).Msg("response index search failed, scanning stored responses")
	}

	responses, err := s.repos.ResponseRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list responses", err)
	}
	hits = []*models.ResponseHit{}
	for _, resp := range responses {
		if len(hits) == limit {
			break
		}
		if search.Matches(resp.RawResponse, query) {
			hits = append(hits, &models.ResponseHit{
				ResponseID: resp.ID,
				PromptID:   resp.PromptID,
				Platform:   resp.Platform,
				Snippet:    search.Snippet(resp.RawResponse, query),
			})
		}
	}
	return hits, nil
}

// ExecuteSession runs every prompt of the session against every provider.
// attempt is 1-based; later attempts resume a RUNNING session and skip the
// prompt/provider pairs that already have a response.
func (s *trackingService) ExecuteSession(ctx context.Context, sessionID uuid.UUID, attempt int) error {
	logger := sessionLogger(sessionID).With().Int("attempt", attempt).Logger()

	if len(s.providers) == 0 {
		return queue.Permanent(errors.New("no AI providers configured"))
	}

	session, err := s.repos.SessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return queue.Permanent(fmt.Errorf("session %s not found", sessionID))
	}

	switch session.Status {
	case models.SessionStatusCompleted, models.SessionStatusFailed:
		logger.Info().Str("status", string(session.Status)).Msg("session already finished, nothing to do")
		return nil
	case models.SessionStatusRunning:
		if attempt <= 1 {
			logger.Warn().Msg("session already running, skipping duplicate job")
			return nil
		}
		logger.Info().Msg("resuming running session")
	case models.SessionStatusPending:
		claimed, err := s.repos.SessionRepo.TransitionStatus(ctx, sessionID,
			[]models.SessionStatus{models.SessionStatusPending}, models.SessionStatusRunning, nil)
		if err != nil {
			return fmt.Errorf("failed to claim session: %w", err)
		}
		if !claimed {
			logger.Info().Msg("session was claimed or stopped concurrently")
			return nil
		}
		logger.Info().Msg("session claimed")
	}

	prompts, err := s.repos.PromptRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}
	existing, err := s.repos.ResponseRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load responses: %w", err)
	}
	answered := make(map[string]bool, len(existing))
	for _, resp := range existing {
		answered[unitKey(resp.PromptID, resp.Platform)] = true
	}

	limit := s.cfg.PromptConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var attempted, failed atomic.Int32
	var stopped atomic.Bool

dispatch:
	for _, prompt := range prompts {
		for _, provider := range s.providers {
			if stopped.Load() || gctx.Err() != nil {
				break dispatch
			}
			if answered[unitKey(prompt.ID, provider.GetProviderName())] {
				continue
			}

			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic while running prompt %d on %s: %v", prompt.Ordinal, provider.GetProviderName(), r)
					}
				}()

				if stopped.Load() || gctx.Err() != nil {
					return nil
				}
				halt, err := s.isStopped(gctx, sessionID)
				if err != nil {
					return err
				}
				if halt {
					stopped.Store(true)
					return nil
				}

				attempted.Add(1)
				ok, err := s.runUnit(gctx, session, prompt, provider)
				if err != nil {
					return err
				}
				if !ok {
					failed.Add(1)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if stopped.Load() {
		logger.Info().Msg("session stopped, remaining prompts skipped")
		return nil
	}
	// a session with any stored response is a partial success
	if n := attempted.Load(); n > 0 && failed.Load() == n && len(existing) == 0 {
		return ErrAllPromptsFailed
	}

	now := s.now()
	completed, err := s.repos.SessionRepo.TransitionStatus(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusRunning}, models.SessionStatusCompleted, &now)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if !completed {
		logger.Info().Msg("session left RUNNING before completion, keeping its status")
		return nil
	}

	metrics.SessionsTotal.WithLabelValues("completed").Inc()
	logger.Info().
		Int32("attempted", attempted.Load()).
		Int32("failed", failed.Load()).
		Msg("tracking session completed")
	return nil
}

// runUnit asks one provider one prompt and stores the answer. It reports
// false when the provider call failed; a non-nil error means the answer
// could not be stored.
func (s *trackingService) runUnit(ctx context.Context, session *models.TrackingSession, prompt *models.Prompt, provider providers.AIProvider) (bool, error) {
	platform := provider.GetProviderName()
	logger := sessionLogger(session.ID).With().Int("ordinal", prompt.Ordinal).Str("provider", platform).Logger()

	answer, err := provider.RunQuestion(ctx, prompt.PromptText)
	if err != nil {
		logger.Warn().Err(err).Msg("provider call failed, continuing")
		return false, nil
	}

	extraction := s.extractor.Extract(answer.Response, session.Brands, answer.Sources)
	now := s.now()

	response := &models.AIResponse{
		ID:           uuid.New(),
		PromptID:     prompt.ID,
		SessionID:    session.ID,
		RawResponse:  answer.Response,
		Platform:     platform,
		InputTokens:  answer.InputTokens,
		OutputTokens: answer.OutputTokens,
		Cost:         answer.Cost,
		CreatedAt:    now,
	}
	mentions := make([]*models.BrandMention, 0, len(extraction.Mentions))
	for _, hit := range extraction.Mentions {
		m := &models.BrandMention{
			ID:           uuid.New(),
			ResponseID:   response.ID,
			SessionID:    session.ID,
			PromptID:     prompt.ID,
			BrandName:    hit.Brand,
			MentionCount: hit.Count,
			CreatedAt:    now,
		}
		if hit.Context != "" {
			snippet := hit.Context
			m.Context = &snippet
		}
		mentions = append(mentions, m)
	}
	citations := make([]*models.Citation, 0, len(extraction.Citations))
	for _, c := range extraction.Citations {
		citation := &models.Citation{
			ID:         uuid.New(),
			ResponseID: response.ID,
			SessionID:  session.ID,
			URL:        c.URL,
			Title:      c.Title,
			CreatedAt:  now,
		}
		if c.Domain != "" {
			domain := c.Domain
			citation.Domain = &domain
		}
		citations = append(citations, citation)
	}

	if err := s.repos.ResponseRepo.CreateWithArtifacts(ctx, response, mentions, citations); err != nil {
		return false, fmt.Errorf("failed to store response for prompt %d on %s: %w", prompt.Ordinal, platform, err)
	}

	if err := s.index.Index(ctx, search.NewDocument(response)); err != nil {
		logger.Warn().Err(err).Msg("failed to index response")
	}

	logger.Info().
		Int("mentions", len(mentions)).
		Int("citations", len(citations)).
		Msg("response stored")
	return true, nil
}

func (s *trackingService) isStopped(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	session, err := s.repos.SessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to check session status: %w", err)
	}
	return session == nil || session.Status != models.SessionStatusRunning, nil
}

func (s *trackingService) FailSession(ctx context.Context, sessionID uuid.UUID, cause error) error {
	now := s.now()
	changed, err := s.repos.SessionRepo.TransitionStatus(ctx, sessionID, activeStatuses, models.SessionStatusFailed, &now)
	if err != nil {
		return fmt.Errorf("failed to mark session as failed: %w", err)
	}
	if !changed {
		return nil
	}

	metrics.SessionsTotal.WithLabelValues("failed").Inc()
	sessionLogger(sessionID).Error().Err(cause).Msg("tracking session failed")

	if s.notifier != nil {
		session, err := s.repos.SessionRepo.GetByID(ctx, sessionID)
		if err == nil && session != nil {
			s.notifier.NotifySessionFailed(ctx, session, cause)
		}
	}
	return nil
}

// ReapStaleSessions re-queues PENDING sessions and fails RUNNING sessions
// created more than StaleAfter ago. It returns how many sessions it acted on.
func (s *trackingService) ReapStaleSessions(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	reaped := 0

	pending, err := s.repos.SessionRepo.ListByStatusBefore(ctx, models.SessionStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending sessions: %w", err)
	}
	for _, session := range pending {
		if err := s.enqueue(ctx, session.ID); err != nil {
			sessionLogger(session.ID).Warn().Err(err).Msg("failed to re-queue stale session")
			continue
		}
		reaped++
	}

	running, err := s.repos.SessionRepo.ListByStatusBefore(ctx, models.SessionStatusRunning, cutoff)
	if err != nil {
		return reaped, fmt.Errorf("failed to list running sessions: %w", err)
	}
	for _, session := range running {
		cause := fmt.Errorf("session still running after %s", s.cfg.StaleAfter)
		if err := s.FailSession(ctx, session.ID, cause); err != nil {
			sessionLogger(session.ID).Warn().Err(err).Msg("failed to fail stale session")
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (s *trackingService) getSession(ctx context.Context, sessionID uuid.UUID) (*models.TrackingSession, error) {
	session, err := s.repos.SessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get session", err)
	}
	if session == nil {
		return nil, apperrors.NewNotFoundError("Session not found")
	}
	return session, nil
}

func (s *trackingService) terminalSnapshot(ctx context.Context, sessionID uuid.UUID) (*SessionSnapshot, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsTerminal() {
		return nil, apperrors.NewNotReadyError(fmt.Sprintf("Session is still %s", session.Status))
	}

	snapshot := &SessionSnapshot{Session: session}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prompts, err := s.repos.PromptRepo.ListBySession(gctx, sessionID)
		mu.Lock()
		snapshot.Prompts = prompts
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		responses, err := s.repos.ResponseRepo.ListBySession(gctx, sessionID)
		mu.Lock()
		snapshot.Responses = responses
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		mentions, err := s.repos.MentionRepo.ListBySession(gctx, sessionID)
		mu.Lock()
		snapshot.Mentions = mentions
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		citations, err := s.repos.CitationRepo.ListBySession(gctx, sessionID)
		mu.Lock()
		snapshot.Citations = citations
		mu.Unlock()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewInternalError("failed to load session results", err)
	}
	return snapshot, nil
}

func unitKey(promptID uuid.UUID, platform string) string {
	return promptID.String() + "|" + platform
}

func sessionLogger(sessionID uuid.UUID) *zerolog.Logger {
	l := log.With().Str("component", "TrackingService").Str("session_id", sessionID.String()).Logger()
	return &l
}
