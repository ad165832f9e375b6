// Package memory keeps every repository in process memory. It backs local
// development without postgres and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/interfaces"
)

type Store struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*models.TrackingSession
	prompts   map[uuid.UUID]*models.Prompt
	responses map[uuid.UUID]*models.AIResponse
	mentions  map[uuid.UUID]*models.BrandMention
	citations map[uuid.UUID]*models.Citation
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[uuid.UUID]*models.TrackingSession),
		prompts:   make(map[uuid.UUID]*models.Prompt),
		responses: make(map[uuid.UUID]*models.AIResponse),
		mentions:  make(map[uuid.UUID]*models.BrandMention),
		citations: make(map[uuid.UUID]*models.Citation),
	}
}

func (s *Store) Sessions() interfaces.SessionRepository   { return &sessionRepo{s} }
func (s *Store) Prompts() interfaces.PromptRepository     { return &promptRepo{s} }
func (s *Store) Responses() interfaces.ResponseRepository { return &responseRepo{s} }
func (s *Store) Mentions() interfaces.MentionRepository   { return &mentionRepo{s} }
func (s *Store) Citations() interfaces.CitationRepository { return &citationRepo{s} }

// copies keep callers from mutating stored rows

func copySession(in *models.TrackingSession) *models.TrackingSession {
	out := *in
	out.Competitors = append([]string(nil), in.Competitors...)
	out.Brands = append([]string(nil), in.Brands...)
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyPrompt(in *models.Prompt) *models.Prompt             { out := *in; return &out }
func copyResponse(in *models.AIResponse) *models.AIResponse   { out := *in; return &out }
func copyMention(in *models.BrandMention) *models.BrandMention { out := *in; return &out }
func copyCitation(in *models.Citation) *models.Citation       { out := *in; return &out }

type sessionRepo struct{ s *Store }

func (r *sessionRepo) CreateWithPrompts(ctx context.Context, session *models.TrackingSession, prompts []*models.Prompt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	ordinals := make(map[int]bool, len(prompts))
	for _, p := range prompts {
		if _, exists := r.s.prompts[p.ID]; exists {
			return fmt.Errorf("prompt %s already exists", p.ID)
		}
		if ordinals[p.Ordinal] {
			return fmt.Errorf("duplicate prompt ordinal %d", p.Ordinal)
		}
		ordinals[p.Ordinal] = true
	}

	r.s.sessions[session.ID] = copySession(session)
	for _, p := range prompts {
		r.s.prompts[p.ID] = copyPrompt(p)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrackingSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(session), nil
}

func (r *sessionRepo) ListRecent(ctx context.Context, limit int) ([]*models.TrackingSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*models.TrackingSession, 0, len(r.s.sessions))
	for _, session := range r.s.sessions {
		out = append(out, copySession(session))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *sessionRepo) ListByStatusBefore(ctx context.Context, status models.SessionStatus, cutoff time.Time) ([]*models.TrackingSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.TrackingSession
	for _, session := range r.s.sessions {
		if session.Status == status && session.CreatedAt.Before(cutoff) {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, completedAt *time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if session.Status == status {
			session.Status = to
			if completedAt != nil {
				t := *completedAt
				session.CompletedAt = &t
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[id]; !ok {
		return false, nil
	}
	delete(r.s.sessions, id)
	for key, p := range r.s.prompts {
		if p.SessionID == id {
			delete(r.s.prompts, key)
		}
	}
	for key, resp := range r.s.responses {
		if resp.SessionID == id {
			delete(r.s.responses, key)
		}
	}
	for key, m := range r.s.mentions {
		if m.SessionID == id {
			delete(r.s.mentions, key)
		}
	}
	for key, c := range r.s.citations {
		if c.SessionID == id {
			delete(r.s.citations, key)
		}
	}
	return true, nil
}

type promptRepo struct{ s *Store }

func (r *promptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	prompt, ok := r.s.prompts[id]
	if !ok {
		return nil, nil
	}
	return copyPrompt(prompt), nil
}

func (r *promptRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Prompt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.Prompt{}
	for _, p := range r.s.prompts {
		if p.SessionID == sessionID {
			out = append(out, copyPrompt(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

type responseRepo struct{ s *Store }

func (r *responseRepo) CreateWithArtifacts(ctx context.Context, response *models.AIResponse, mentions []*models.BrandMention, citations []*models.Citation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.sessions[response.SessionID]; !ok {
		return fmt.Errorf("session %s does not exist", response.SessionID)
	}
	if _, ok := r.s.prompts[response.PromptID]; !ok {
		return fmt.Errorf("prompt %s does not exist", response.PromptID)
	}
	for _, existing := range r.s.responses {
		if existing.PromptID == response.PromptID && existing.Platform == response.Platform {
			return fmt.Errorf("response for prompt %s on %s already exists", response.PromptID, response.Platform)
		}
	}
	for _, m := range mentions {
		if m.MentionCount < 1 {
			return fmt.Errorf("mention count for %s must be at least 1", m.BrandName)
		}
	}

	r.s.responses[response.ID] = copyResponse(response)
	for _, m := range mentions {
		r.s.mentions[m.ID] = copyMention(m)
	}
	for _, c := range citations {
		r.s.citations[c.ID] = copyCitation(c)
	}
	return nil
}

func (r *responseRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AIResponse, error) {
	return r.list(func(resp *models.AIResponse) bool { return resp.SessionID == sessionID }), nil
}

func (r *responseRepo) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.AIResponse, error) {
	return r.list(func(resp *models.AIResponse) bool { return resp.PromptID == promptID }), nil
}

func (r *responseRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return len(r.list(func(resp *models.AIResponse) bool { return resp.SessionID == sessionID })), nil
}

func (r *responseRepo) list(match func(*models.AIResponse) bool) []*models.AIResponse {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.AIResponse{}
	for _, resp := range r.s.responses {
		if match(resp) {
			out = append(out, copyResponse(resp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

type mentionRepo struct{ s *Store }

func (r *mentionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.BrandMention, error) {
	return r.list(func(m *models.BrandMention) bool { return m.SessionID == sessionID }), nil
}

func (r *mentionRepo) ListByPrompt(ctx context.Context, promptID uuid.UUID) ([]*models.BrandMention, error) {
	return r.list(func(m *models.BrandMention) bool { return m.PromptID == promptID }), nil
}

func (r *mentionRepo) list(match func(*models.BrandMention) bool) []*models.BrandMention {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.BrandMention{}
	for _, m := range r.s.mentions {
		if match(m) {
			out = append(out, copyMention(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

type citationRepo struct{ s *Store }

func (r *citationRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.Citation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.Citation{}
	for _, c := range r.s.citations {
		if c.SessionID == sessionID {
			out = append(out, copyCitation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
