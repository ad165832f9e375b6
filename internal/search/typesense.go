package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

const CollectionName = "ai_responses"

type TypesenseIndex struct {
	client *typesense.Client
}

// NewTypesenseIndex creates an index against the server at serverURL
func NewTypesenseIndex(serverURL, apiKey string) *TypesenseIndex {
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	return &TypesenseIndex{client: client}
}

// EnsureCollection creates the ai_responses collection if it does not exist yet
func (t *TypesenseIndex) EnsureCollection(ctx context.Context) error {
	schema := &api.CollectionSchema{
		Name: CollectionName,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "session_id", Type: "string", Facet: pointer.True()},
			{Name: "prompt_id", Type: "string"},
			{Name: "platform", Type: "string", Facet: pointer.True()},
			{Name: "text", Type: "string"},
			{Name: "created_at", Type: "int64", Sort: pointer.True()},
		},
		DefaultSortingField: pointer.String("created_at"),
	}

	_, err := t.client.Collections().Create(ctx, schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}
	log.Info().Str("component", "TypesenseIndex").Str("collection", CollectionName).Msg("collection is ready")
	return nil
}

func (t *TypesenseIndex) Index(ctx context.Context, doc *Document) error {
	document := map[string]interface{}{
		"id":         doc.ResponseID.String(),
		"session_id": doc.SessionID.String(),
		"prompt_id":  doc.PromptID.String(),
		"platform":   doc.Platform,
		"text":       doc.Text,
		"created_at": doc.CreatedAt.Unix(),
	}

	if _, err := t.client.Collection(CollectionName).Documents().Upsert(ctx, document); err != nil {
		return fmt.Errorf("failed to index response %s: %w", doc.ResponseID, err)
	}
	return nil
}

func (t *TypesenseIndex) Search(ctx context.Context, sessionID uuid.UUID, query string, limit int) ([]*models.ResponseHit, error) {
	params := &api.SearchCollectionParams{
		Q:        pointer.String(query),
		QueryBy:  pointer.String("text"),
		FilterBy: pointer.String("session_id:=" + sessionID.String()),
		PerPage:  pointer.Int(limit),
	}

	result, err := t.client.Collection(CollectionName).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search responses: %w", err)
	}

	hits := []*models.ResponseHit{}
	if result.Hits == nil {
		return hits, nil
	}
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document

		responseID, err := uuid.Parse(stringField(doc, "id"))
		if err != nil {
			continue
		}
		promptID, _ := uuid.Parse(stringField(doc, "prompt_id"))

		hits = append(hits, &models.ResponseHit{
			ResponseID: responseID,
			PromptID:   promptID,
			Platform:   stringField(doc, "platform"),
			Snippet:    Snippet(stringField(doc, "text"), query),
		})
	}
	return hits, nil
}

func (t *TypesenseIndex) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	params := &api.DeleteDocumentsParams{
		FilterBy: pointer.String("session_id:=" + sessionID.String()),
	}
	if _, err := t.client.Collection(CollectionName).Documents().Delete(ctx, params); err != nil {
		return fmt.Errorf("failed to delete indexed responses of session %s: %w", sessionID, err)
	}
	return nil
}

func stringField(doc map[string]interface{}, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
