package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlaw/lexengine/internal/cache"
	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/errors"
	"github.com/clearlaw/lexengine/internal/expand"
	"github.com/clearlaw/lexengine/internal/lexical"
	"github.com/clearlaw/lexengine/internal/query"
	"github.com/clearlaw/lexengine/internal/rerank"
	"github.com/clearlaw/lexengine/internal/storage"
	"github.com/clearlaw/lexengine/internal/vector"
)

// buildCorpusStore populates an in-memory store with the lexical index
// snapshot, the statute catalog, and parent document blobs.
func buildCorpusStore(t *testing.T) *storage.MemStore {
	t.Helper()
	store := storage.NewMemStore()

	metas := []lexical.ChunkMeta{
		{
			ID: "c1", ParentDocID: "d1", DocType: corpus.DocTypeAct,
			Title: "Labour Act [Chapter 28:01]", Chapter: "28:01", Section: "12C", Year: 1985,
			Text: "section 12c retrenchment an employer who wishes to retrench workers shall give notice",
		},
		{
			ID: "c2", ParentDocID: "d1", DocType: corpus.DocTypeAct,
			Title: "Labour Act [Chapter 28:01]", Chapter: "28:01", Section: "12", Year: 1985,
			Text: "section 12 duration of employment contracts and notice amendments",
		},
		{
			ID: "c3", ParentDocID: "d2", DocType: corpus.DocTypeAct,
			Title: "Criminal Law Act [Chapter 9:23]", Chapter: "9:23", Section: "113", Year: 2004,
			Text: "section 113 theft a person commits theft amendments to prior law",
		},
	}

	postings := make(map[string][]lexical.Posting)
	total := 0
	for i := range metas {
		tokens := lexical.Tokenize(metas[i].Text)
		metas[i].TokenCount = len(tokens)
		total += len(tokens)
		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, count := range tf {
			postings[term] = append(postings[term], lexical.Posting{Chunk: i, TF: count})
		}
	}

	snap := lexical.Snapshot{
		Version:   "test-1",
		BuiltAt:   time.Now(),
		AvgDocLen: float64(total) / float64(len(metas)),
		Postings:  postings,
		Chunks:    metas,
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	store.Put(storage.IndexKey(), data)

	catalog := []query.StatuteEntry{
		{Title: "Labour Act [Chapter 28:01]", Chapter: "28:01", ShortTitles: []string{"Labour Act"}},
		{Title: "Criminal Law Act [Chapter 9:23]", Chapter: "9:23", Aliases: []string{"criminal code"}},
	}
	data, err = json.Marshal(catalog)
	require.NoError(t, err)
	store.Put(storage.CatalogKey(), data)

	for _, d := range []*corpus.ParentDocument{
		{ID: "d1", Title: "Labour Act [Chapter 28:01]", Chapter: "28:01", Text: "full labour act text"},
		{ID: "d2", Title: "Criminal Law Act [Chapter 9:23]", Chapter: "9:23", Text: "full criminal law text"},
	} {
		data, err := json.Marshal(d)
		require.NoError(t, err)
		store.Put(storage.DocKey(corpus.DocTypeAct, d.ID), data)
	}

	return store
}

func newTestEngine(t *testing.T, store *storage.MemStore) *Engine {
	t.Helper()
	resolver := query.NewAliasResolver(&query.StorageCatalog{Store: store}, time.Minute, nil)
	return NewEngine(
		query.NewProcessor(resolver, nil),
		lexical.NewProvider(store, lexical.DefaultConfig(), nil),
		nil, // no vector service
		nil, // default fuser
		rerank.NewReranker(nil, nil),
		expand.NewExpander(store, nil),
		nil, // no cache
		nil,
	)
}

func TestRetrieveSectionFastPath(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "What does section 12C of the Labour Act say?", Options{})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)

	r := rs.Results[0]
	assert.Equal(t, "c1", r.Chunk.ID)
	assert.Equal(t, "section_lookup", r.Prov(corpus.ProvSource))
	assert.Equal(t, "full labour act text", r.Chunk.Text, "expanded to parent document")
	assert.InDelta(t, 0.95, rs.Confidence, 1e-9)
}

func TestRetrieveStatuteFastPath(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "overview of the Labour Act", Options{})
	require.NoError(t, err)
	require.Len(t, rs.Results, 2)
	for _, r := range rs.Results {
		assert.Equal(t, "statute_lookup", r.Prov(corpus.ProvSource))
		assert.Equal(t, "28:01", r.Chunk.Chapter)
	}
}

func TestRetrieveHybridFallsBackWithoutVector(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "when must an employer give notice of retrenchment", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Results)
	assert.Equal(t, "c1", rs.Results[0].Chunk.ID)
	assert.Equal(t, "fallback", rs.Results[0].Prov(corpus.ProvRerank))
}

func TestRetrieveSectionMissFallsThrough(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	// Section 99 does not exist; the hybrid path still tries the words.
	rs, err := e.Retrieve(context.Background(), "section 99 of the labour act retrenchment", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, rs.Results)
}

func TestRetrieveDateFilter(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "amendments after 2000", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Results)
	for _, r := range rs.Results {
		assert.GreaterOrEqual(t, r.Chunk.Year, 2000, "chunk %s", r.Chunk.ID)
	}
}

func TestRetrieveAsAtOption(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "theft amendments", Options{
		AsAtDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, r := range rs.Results {
		assert.LessOrEqual(t, r.Chunk.Year, 1990)
	}
}

func TestRetrieveMinScore(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "notice of retrenchment", Options{MinScore: 0.99})
	require.NoError(t, err)
	// Fused RRF scores are far below 0.99; everything is filtered.
	assert.Empty(t, rs.Results)
	assert.Zero(t, rs.Confidence)
}

func TestRetrieveValidation(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))
	ctx := context.Background()

	_, err := e.Retrieve(ctx, "query", Options{TopK: -1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTopK, errors.GetCode(err))

	_, err = e.Retrieve(ctx, "query", Options{TopK: 999})
	require.Error(t, err)

	_, err = e.Retrieve(ctx, "query", Options{MinScore: 1.5})
	require.Error(t, err)

	_, err = e.Retrieve(ctx, "query", Options{MaxPerDoc: -1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	_, err = e.Retrieve(ctx, "query", Options{ExpansionsCount: -1})
	require.Error(t, err)

	_, err = e.Retrieve(ctx, "query", Options{ExpansionsCount: 99})
	require.Error(t, err)

	_, err = e.Retrieve(ctx, "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
}

func TestRetrieveGracefulDegradation(t *testing.T) {
	store := storage.NewMemStore()
	store.Fail = fmt.Errorf("bucket unreachable")
	e := newTestEngine(t, store)

	rs, err := e.Retrieve(context.Background(), "any question at all", Options{})
	require.NoError(t, err, "infrastructure failure never errors the caller")
	assert.Empty(t, rs.Results)
	assert.Zero(t, rs.Confidence)
}

func TestRetrieveIdempotent(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))
	ctx := context.Background()

	first, err := e.Retrieve(ctx, "notice of retrenchment", Options{SkipExpansion: true})
	require.NoError(t, err)
	second, err := e.Retrieve(ctx, "notice of retrenchment", Options{SkipExpansion: true})
	require.NoError(t, err)

	require.Equal(t, len(first.Results), len(second.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].Chunk.ID, second.Results[i].Chunk.ID)
		assert.Equal(t, first.Results[i].Confidence, second.Results[i].Confidence)
	}
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestRetrieveTopKCap(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "section notice employment theft amendments", Options{TopK: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rs.Results), 1)
}

func TestRetrieveSkipExpansion(t *testing.T) {
	e := newTestEngine(t, buildCorpusStore(t))

	rs, err := e.Retrieve(context.Background(), "notice of retrenchment", Options{SkipExpansion: true})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Results)
	for _, r := range rs.Results {
		assert.Empty(t, r.Prov(corpus.ProvExpanded))
		assert.Nil(t, r.Parent)
	}
}

func TestRetrieveHydratesChunkText(t *testing.T) {
	store := storage.NewMemStore()

	// The index snapshot carries metadata and postings only; the words live
	// in the chunk blob.
	fullText := "section 12c retrenchment an employer who wishes to retrench workers shall give notice"
	tokens := lexical.Tokenize(fullText)
	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}
	postings := make(map[string][]lexical.Posting)
	for term, count := range tf {
		postings[term] = append(postings[term], lexical.Posting{Chunk: 0, TF: count})
	}
	snap := lexical.Snapshot{
		Version:   "test-1",
		BuiltAt:   time.Now(),
		AvgDocLen: float64(len(tokens)),
		Postings:  postings,
		Chunks: []lexical.ChunkMeta{{
			ID: "c1", ParentDocID: "d1", DocType: corpus.DocTypeAct,
			Title: "Labour Act [Chapter 28:01]", Chapter: "28:01", Section: "12C",
			Year: 1985, TokenCount: len(tokens),
		}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	store.Put(storage.IndexKey(), data)
	store.Put(storage.CatalogKey(), []byte("[]"))

	blob, err := json.Marshal(&corpus.Chunk{ID: "c1", Text: fullText})
	require.NoError(t, err)
	store.Put(storage.ChunkKey(corpus.DocTypeAct, "c1"), blob)

	e := newTestEngine(t, store)
	rs, err := e.Retrieve(context.Background(), "notice of retrenchment", Options{SkipExpansion: true})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Results)
	assert.Equal(t, fullText, rs.Results[0].Chunk.Text, "text fetched from the chunk blob")
}

func TestRetrieveCacheHitSkipsProcessing(t *testing.T) {
	store := buildCorpusStore(t)
	kv, err := cache.OpenKV("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	semCache := cache.NewSemanticCache(kv, nil, cache.DefaultCacheConfig(), nil)

	resolver := query.NewAliasResolver(&query.StorageCatalog{Store: store}, time.Minute, nil)
	e := NewEngine(
		query.NewProcessor(resolver, nil),
		lexical.NewProvider(store, lexical.DefaultConfig(), nil),
		nil,
		nil,
		rerank.NewReranker(nil, nil),
		expand.NewExpander(store, nil),
		semCache,
		nil,
	)
	ctx := context.Background()

	cached := &corpus.ResultSet{
		Results: []*corpus.RetrievalResult{
			corpus.NewResult(&corpus.Chunk{ID: "c1", Text: "cached text"}, 0.9, "fused"),
		},
		Confidence: 0.9,
		CreatedAt:  time.Now(),
	}
	semCache.Put(ctx, "what is theft", "default", cached)
	store.Gets.Store(0)

	rs, err := e.Retrieve(ctx, "what is theft", Options{})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)
	assert.Equal(t, "c1", rs.Results[0].Chunk.ID)
	assert.Equal(t, int64(0), store.Gets.Load(),
		"a cache hit touches neither the catalog nor the index")
}

// countingEmbedder records how many texts it was asked to embed.
type countingEmbedder struct {
	texts atomic.Int64
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return 2 }

func TestRetrieveExpansionsCount(t *testing.T) {
	var searches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/collections":
			w.WriteHeader(http.StatusOK)
		case "/v1/search":
			searches.Add(1)
			fmt.Fprint(w, `{"data":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := vector.NewClient(vector.Config{BaseURL: srv.URL, Collection: "legal_chunks"}, nil)
	require.NoError(t, err)
	embedder := &countingEmbedder{}

	store := buildCorpusStore(t)
	resolver := query.NewAliasResolver(&query.StorageCatalog{Store: store}, time.Minute, nil)
	e := NewEngine(
		query.NewProcessor(resolver, nil),
		lexical.NewProvider(store, lexical.DefaultConfig(), nil),
		vector.NewProvider(client, embedder, nil),
		nil,
		rerank.NewReranker(nil, nil),
		expand.NewExpander(store, nil),
		nil,
		nil,
	)

	_, err = e.Retrieve(context.Background(), "when must an employer give notice of retrenchment",
		Options{ExpansionsCount: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(1), embedder.texts.Load(), "one variant embedded")
	assert.Equal(t, int64(1), searches.Load(), "one dense search issued")
}
