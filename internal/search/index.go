// Package search indexes collected AI responses for keyword search.
package search

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

// ErrDisabled is returned by Search when no index backend is configured.
// Callers fall back to scanning the stored responses.
var ErrDisabled = errors.New("response index disabled")

// Document is one indexed response
type Document struct {
	ResponseID uuid.UUID
	SessionID  uuid.UUID
	PromptID   uuid.UUID
	Platform   string
	Text       string
	CreatedAt  time.Time
}

// NewDocument builds the index document of a stored response
func NewDocument(resp *models.AIResponse) *Document {
	return &Document{
		ResponseID: resp.ID,
		SessionID:  resp.SessionID,
		PromptID:   resp.PromptID,
		Platform:   resp.Platform,
		Text:       resp.RawResponse,
		CreatedAt:  resp.CreatedAt,
	}
}

type ResponseIndex interface {
	Index(ctx context.Context, doc *Document) error
	Search(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]*models.ResponseHit, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// NopIndex is used when Typesense is not configured
type NopIndex struct{}

func (NopIndex) Index(ctx context.Context, doc *Document) error { return nil }

func (NopIndex) Search(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]*models.ResponseHit, error) {
	return nil, ErrDisabled
}

func (NopIndex) DeleteSession(ctx context.Context, sessionID uuid.UUID) error { return nil }

const snippetRadius = 80

// Snippet returns the part of text around the first case-insensitive match
// of query, or its beginning when there is no match.
func Snippet(text, query string) string {
	text = strings.Join(strings.Fields(text), " ")
	pos := strings.Index(strings.ToLower(text), strings.ToLower(strings.TrimSpace(query)))
	if pos < 0 {
		pos = 0
	}

	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := pos + len(query) + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	out := text[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

// Matches reports whether every term of query occurs in text, ignoring case
func Matches(text, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
