package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlaw/lexengine/internal/corpus"
)

// stubEmbedder maps known texts to fixed vectors; everything else gets a
// default direction.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }

func testKV(t *testing.T) *KVStore {
	t.Helper()
	kv, err := OpenKV("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func testResultSet() *corpus.ResultSet {
	return &corpus.ResultSet{
		Results: []*corpus.RetrievalResult{
			corpus.NewResult(&corpus.Chunk{ID: "c1", Text: "theft provisions"}, 0.9, "fused"),
		},
		Confidence: 0.9,
		CreatedAt:  time.Now(),
	}
}

func TestCacheExactRoundTrip(t *testing.T) {
	c := NewSemanticCache(testKV(t), nil, DefaultCacheConfig(), nil)
	ctx := context.Background()

	assert.Nil(t, c.Get(ctx, "what is theft", "default"))

	c.Put(ctx, "what is theft", "default", testResultSet())

	rs := c.Get(ctx, "what is theft", "default")
	require.NotNil(t, rs)
	require.Len(t, rs.Results, 1)
	assert.Equal(t, "c1", rs.Results[0].Chunk.ID)
}

func TestCacheKeyNormalization(t *testing.T) {
	c := NewSemanticCache(testKV(t), nil, DefaultCacheConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "what is theft", "default", testResultSet())

	// Casing, punctuation and whitespace differences hit the same key.
	assert.NotNil(t, c.Get(ctx, "What  Is THEFT?", "default"))
	assert.NotNil(t, c.Get(ctx, "  what is theft  ", "default"))

	// A different segment is a different key.
	assert.Nil(t, c.Get(ctx, "what is theft", "judgments"))
}

func TestCacheSemanticHit(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"what is theft":       {1, 0},
		"explain theft to me": {0.999, 0.01},
		"company registration": {0, 1},
	}}
	c := NewSemanticCache(testKV(t), emb, DefaultCacheConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "what is theft", "default", testResultSet())

	// A near-identical embedding reuses the cached set despite a different
	// exact key.
	assert.NotNil(t, c.Get(ctx, "explain theft to me", "default"))

	// An orthogonal query misses.
	assert.Nil(t, c.Get(ctx, "company registration", "default"))
}

func TestCacheExpiry(t *testing.T) {
	cfg := Config{TTL: time.Nanosecond, SimilarityThreshold: 0.95}
	c := NewSemanticCache(testKV(t), nil, cfg, nil)
	ctx := context.Background()

	c.Put(ctx, "what is theft", "default", testResultSet())
	time.Sleep(1100 * time.Millisecond)

	assert.Nil(t, c.Get(ctx, "what is theft", "default"))
}

func TestCacheNilStoreNoOp(t *testing.T) {
	c := NewSemanticCache(nil, nil, DefaultCacheConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "q", "default", testResultSet())
	assert.Nil(t, c.Get(ctx, "q", "default"))

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestCacheStats(t *testing.T) {
	c := NewSemanticCache(testKV(t), nil, DefaultCacheConfig(), nil)
	ctx := context.Background()

	c.Get(ctx, "q1", "default") // miss
	c.Put(ctx, "q1", "default", testResultSet())
	c.Get(ctx, "q1", "default") // hit
	c.Get(ctx, "q1", "default") // hit
	c.Get(ctx, "q2", "default") // miss

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestCacheRebuildSegments(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	c := NewSemanticCache(testKV(t), emb, DefaultCacheConfig(), nil)
	ctx := context.Background()

	c.Put(ctx, "what is theft", "default", testResultSet())
	c.Put(ctx, "company registration", "corporate", testResultSet())

	// Wipe the in-memory indexes, then rebuild from the store.
	c.mu.Lock()
	c.segments = make(map[string]*segmentIndex)
	c.mu.Unlock()
	c.RebuildSegments()

	c.mu.Lock()
	segments := len(c.segments)
	c.mu.Unlock()
	assert.Equal(t, 2, segments)

	// Similarity lookups work again after the rebuild.
	assert.NotNil(t, c.Get(ctx, "what is theft again", "default"))
}

func TestCacheHitCounterExpiresWithPayload(t *testing.T) {
	cfg := Config{TTL: 2 * time.Second, SimilarityThreshold: 0.95}
	c := NewSemanticCache(testKV(t), nil, cfg, nil)
	ctx := context.Background()

	c.Put(ctx, "what is theft", "default", testResultSet())
	require.NotNil(t, c.Get(ctx, "what is theft", "default"))

	key := Key("what is theft", "default")
	assert.Equal(t, uint64(1), c.store.Counter(hitsPrefix+key))

	// The popularity counter carries the payload's remaining lifetime, so
	// both disappear together.
	time.Sleep(3100 * time.Millisecond)
	assert.Nil(t, c.Get(ctx, "what is theft", "default"))
	assert.Zero(t, c.store.Counter(hitsPrefix+key))
}

func TestKVGetWithTTL(t *testing.T) {
	kv := testKV(t)

	require.NoError(t, kv.SetTTL("expiring", []byte("v"), time.Hour))
	_, remaining, err := kv.GetWithTTL("expiring")
	require.NoError(t, err)
	assert.Greater(t, remaining, 59*time.Minute)
	assert.LessOrEqual(t, remaining, time.Hour)

	require.NoError(t, kv.SetTTL("forever", []byte("v"), 0))
	_, remaining, err = kv.GetWithTTL("forever")
	require.NoError(t, err)
	assert.Zero(t, remaining, "entries without TTL report no expiry")
}

func TestKVCounter(t *testing.T) {
	kv := testKV(t)

	n, err := kv.IncrCounter("stats:test", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = kv.IncrCounter("stats:test", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	assert.Equal(t, uint64(2), kv.Counter("stats:test"))
	assert.Zero(t, kv.Counter("stats:absent"))
}

func TestKVScanPrefix(t *testing.T) {
	kv := testKV(t)
	require.NoError(t, kv.SetTTL("q:a", []byte("1"), 0))
	require.NoError(t, kv.SetTTL("q:b", []byte("2"), 0))
	require.NoError(t, kv.SetTTL("h:a", []byte("3"), 0))

	var keys []string
	require.NoError(t, kv.ScanPrefix("q:", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.ElementsMatch(t, []string{"q:a", "q:b"}, keys)
}
