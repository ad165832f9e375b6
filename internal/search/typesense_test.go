package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/search"
)

type fakeTypesense struct {
	mu       sync.Mutex
	upserted []map[string]interface{}
	queries  []string
	filters  []string
	hits     []map[string]interface{}
}

func (f *fakeTypesense) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	docsPath := "/collections/" + search.CollectionName + "/documents"

	switch {
	case r.Method == http.MethodPost && r.URL.Path == docsPath:
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		f.upserted = append(f.upserted, doc)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(doc)
	case r.Method == http.MethodGet && r.URL.Path == docsPath+"/search":
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.filters = append(f.filters, r.URL.Query().Get("filter_by"))
		hits := make([]map[string]interface{}, 0, len(f.hits))
		for _, doc := range f.hits {
			hits = append(hits, map[string]interface{}{"document": doc, "highlights": []interface{}{}})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"found":          len(hits),
			"hits":           hits,
			"out_of":         len(hits),
			"page":           1,
			"search_time_ms": 1,
		})
	case r.Method == http.MethodDelete && r.URL.Path == docsPath:
		f.filters = append(f.filters, r.URL.Query().Get("filter_by"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"num_deleted": 2})
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}
}

func TestTypesenseIndex(t *testing.T) {
	fake := &fakeTypesense{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	idx := search.NewTypesenseIndex(srv.URL, "test-key")
	ctx := context.Background()
	sessionID := uuid.New()
	responseID := uuid.New()
	promptID := uuid.New()

	t.Run("index upserts the response", func(t *testing.T) {
		err := idx.Index(ctx, &search.Document{
			ResponseID: responseID,
			SessionID:  sessionID,
			PromptID:   promptID,
			Platform:   "openai",
			Text:       "Acme CRM is the top rated option.",
			CreatedAt:  time.Unix(1700000000, 0),
		})
		require.NoError(t, err)

		require.Len(t, fake.upserted, 1)
		assert.Equal(t, responseID.String(), fake.upserted[0]["id"])
		assert.Equal(t, sessionID.String(), fake.upserted[0]["session_id"])
		assert.Equal(t, "openai", fake.upserted[0]["platform"])
	})

	t.Run("search is scoped to the session", func(t *testing.T) {
		fake.hits = []map[string]interface{}{{
			"id":         responseID.String(),
			"session_id": sessionID.String(),
			"prompt_id":  promptID.String(),
			"platform":   "openai",
			"text":       "Acme CRM is the top rated option.",
			"created_at": 1700000000,
		}}

		hits, err := idx.Search(ctx, sessionID, "acme", 5)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, responseID, hits[0].ResponseID)
		assert.Equal(t, promptID, hits[0].PromptID)
		assert.Contains(t, hits[0].Snippet, "Acme CRM")

		assert.Equal(t, "acme", fake.queries[len(fake.queries)-1])
		assert.Equal(t, "session_id:="+sessionID.String(), fake.filters[len(fake.filters)-1])
	})

	t.Run("delete session filters by session", func(t *testing.T) {
		require.NoError(t, idx.DeleteSession(ctx, sessionID))
		last := fake.filters[len(fake.filters)-1]
		assert.True(t, strings.HasSuffix(last, sessionID.String()))
	})
}
