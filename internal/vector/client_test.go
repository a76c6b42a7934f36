package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlaw/lexengine/internal/corpus"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func vectorServer(t *testing.T, hits []searchHit) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/collections":
			w.WriteHeader(http.StatusOK)
		case "/v1/search":
			var req searchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "legal_chunks", req.Collection)
			assert.NotEmpty(t, req.Filter)
			require.NoError(t, json.NewEncoder(w).Encode(searchResponse{Data: hits}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClientSearch(t *testing.T) {
	hits := []searchHit{
		{
			ID:       "c1",
			Distance: 0.2,
			Fields: map[string]json.RawMessage{
				"chunk_id":      raw(t, "c1"),
				"parent_doc_id": raw(t, "d1"),
				"doc_type":      raw(t, "act"),
				"text":          raw(t, "retrenchment provisions"),
				"chapter":       raw(t, "28:01"),
				"section":       raw(t, "12C"),
				"year":          raw(t, 1985),
				"metadata":      raw(t, map[string]string{"title": "Labour Act"}),
			},
		},
		{
			ID:       "c2",
			Distance: 1.0,
			Fields: map[string]json.RawMessage{
				"chunk_id": raw(t, "c2"),
				"doc_type": raw(t, "judgment"),
				"text":     raw(t, "case law"),
			},
		},
	}
	srv := vectorServer(t, hits)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Collection: "legal_chunks"}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, c.Healthy(ctx))

	results, err := c.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "c1", first.Chunk.ID)
	assert.Equal(t, "d1", first.Chunk.ParentDocID)
	assert.Equal(t, corpus.DocTypeAct, first.Chunk.DocType)
	assert.Equal(t, "28:01", first.Chunk.Chapter)
	assert.Equal(t, 1985, first.Chunk.Year)
	assert.Equal(t, "Labour Act", first.Chunk.Meta("title"))
	assert.InDelta(t, 0.9, first.Confidence, 1e-9) // 1 - 0.2/2

	assert.InDelta(t, 0.5, results[1].Confidence, 1e-9)
}

func TestClientSearchDropsHitsWithoutID(t *testing.T) {
	hits := []searchHit{
		{Distance: 0.1, Fields: map[string]json.RawMessage{"text": raw(t, "orphan")}},
		{ID: "c1", Distance: 0.3, Fields: map[string]json.RawMessage{"text": raw(t, "kept")}},
	}
	srv := vectorServer(t, hits)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Collection: "legal_chunks"}, nil)
	require.NoError(t, err)

	results, err := c.Search(context.Background(), []float32{1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestParseMetadataForms(t *testing.T) {
	// Structured map.
	m := parseMetadata(json.RawMessage(`{"title":"Labour Act","year":"1985"}`))
	assert.Equal(t, "Labour Act", m["title"])

	// Map with non-string values, stringified.
	m = parseMetadata(json.RawMessage(`{"year":1985,"final":true}`))
	assert.Equal(t, "1985", m["year"])
	assert.Equal(t, "true", m["final"])

	// Serialized string form.
	m = parseMetadata(json.RawMessage(`"{\"title\":\"Labour Act\"}"`))
	assert.Equal(t, "Labour Act", m["title"])

	// Garbage degrades to nil, never an error.
	assert.Nil(t, parseMetadata(json.RawMessage(`"not json at all"`)))
	assert.Nil(t, parseMetadata(nil))
}

func TestDistanceToConfidence(t *testing.T) {
	assert.Equal(t, 1.0, distanceToConfidence(0))
	assert.Equal(t, 0.5, distanceToConfidence(1))
	assert.Equal(t, 0.0, distanceToConfidence(2))
	assert.Equal(t, 0.0, distanceToConfidence(3), "clipped")
	assert.Equal(t, 1.0, distanceToConfidence(-0.5), "clipped")
}

func TestTypeFilter(t *testing.T) {
	f := typeFilter([]corpus.DocType{corpus.DocTypeAct, corpus.DocTypeSI})
	assert.Equal(t, `doc_type in ["act", "si"]`, f)

	// Defaults to every known type.
	assert.Contains(t, typeFilter(nil), "judgment")
}

func TestClientHealthyFalseWhenDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // immediately unreachable

	c, err := NewClient(Config{BaseURL: srv.URL, Collection: "x"}, nil)
	require.NoError(t, err)
	assert.False(t, c.Healthy(context.Background()))
}
