package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/embed"
	"github.com/clearlaw/lexengine/internal/query"
)

const (
	// DefaultTTL is how long a cached result set stays valid. Statute text
	// changes slowly; an hour keeps repeat questions cheap without serving
	// stale corpora for long after a re-ingest.
	DefaultTTL = time.Hour

	// DefaultSimilarityThreshold is the minimum cosine similarity for a
	// semantic hit. Below this, two legal questions are close in embedding
	// space but want different authorities.
	DefaultSimilarityThreshold = 0.95

	queryPrefix   = "q:"
	hitsPrefix    = "h:"
	statHitsKey   = "stats:hits"
	statMissesKey = "stats:misses"
)

// Config configures the semantic cache.
type Config struct {
	TTL                 time.Duration
	SimilarityThreshold float64
}

// DefaultCacheConfig returns the standard TTL and similarity threshold.
func DefaultCacheConfig() Config {
	return Config{TTL: DefaultTTL, SimilarityThreshold: DefaultSimilarityThreshold}
}

// entry is what gets serialized per cached query.
type entry struct {
	Query   string           `json:"query"`
	Segment string           `json:"segment"`
	Vector  []float32        `json:"vector,omitempty"`
	Results corpus.ResultSet `json:"results"`
}

// segmentIndex is the in-memory similarity index over one segment's cached
// query vectors. Deletion is lazy, like the vector store it imitates: keys
// for expired entries linger in the graph until the sweeper rebuilds it.
type segmentIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	keys    map[uint64]string // graph key -> cache key
	nextKey uint64
}

func newSegmentIndex() *segmentIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &segmentIndex{graph: graph, keys: make(map[uint64]string)}
}

func (si *segmentIndex) add(cacheKey string, vec []float32) {
	si.mu.Lock()
	defer si.mu.Unlock()
	key := si.nextKey
	si.nextKey++
	si.graph.Add(hnsw.MakeNode(key, vec))
	si.keys[key] = cacheKey
}

// nearest returns the closest cached query's cache key and its cosine
// similarity, or "" when the segment index is empty.
func (si *segmentIndex) nearest(vec []float32) (string, float64) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	if si.graph.Len() == 0 {
		return "", 0
	}
	nodes := si.graph.Search(vec, 1)
	if len(nodes) == 0 {
		return "", 0
	}
	cacheKey, ok := si.keys[nodes[0].Key]
	if !ok {
		return "", 0
	}
	similarity := 1 - float64(si.graph.Distance(vec, nodes[0].Value))
	return cacheKey, similarity
}

// SemanticCache caches retrieval result sets keyed by normalized query and
// corpus segment, with an embedding-similarity fallback for rephrasings.
// A nil store turns every operation into a no-op: the pipeline runs
// uncached rather than failing.
type SemanticCache struct {
	store    *KVStore
	embedder embed.Embedder // nil disables the similarity path
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	segments map[string]*segmentIndex
}

// NewSemanticCache creates the cache. Both store and embedder may be nil.
func NewSemanticCache(store *KVStore, embedder embed.Embedder, cfg Config, logger *slog.Logger) *SemanticCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticCache{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		segments: make(map[string]*segmentIndex),
	}
}

// Key derives the exact-match cache key for a query and segment. The query
// is normalized first so casing and stray whitespace do not fragment the
// cache.
func Key(rawQuery, segment string) string {
	normalized := query.Normalize(rawQuery)
	sum := sha256.Sum256([]byte(normalized + "\x00" + segment))
	return queryPrefix + segment + ":" + hex.EncodeToString(sum[:])
}

// Get looks up a cached result set, first by exact normalized key, then by
// embedding similarity within the segment. Returns nil on any miss or
// internal failure; the cache never makes a request worse.
func (c *SemanticCache) Get(ctx context.Context, rawQuery, segment string) *corpus.ResultSet {
	if c.store == nil {
		return nil
	}

	key := Key(rawQuery, segment)
	if rs, remaining := c.loadEntry(key); rs != nil {
		c.recordHit(key, remaining)
		return rs
	}

	if rs := c.semanticLookup(ctx, rawQuery, segment); rs != nil {
		return rs
	}

	if _, err := c.store.IncrCounter(statMissesKey, 0); err != nil {
		c.logger.Debug("cache miss counter failed", slog.String("error", err.Error()))
	}
	return nil
}

func (c *SemanticCache) semanticLookup(ctx context.Context, rawQuery, segment string) *corpus.ResultSet {
	if c.embedder == nil {
		return nil
	}

	vectors, err := c.embedder.Embed(ctx, []string{query.Normalize(rawQuery)})
	if err != nil || len(vectors) != 1 {
		return nil
	}

	si := c.segment(segment)
	cacheKey, similarity := si.nearest(vectors[0])
	if cacheKey == "" || similarity < c.cfg.SimilarityThreshold {
		return nil
	}

	rs, remaining := c.loadEntry(cacheKey)
	if rs == nil {
		// Entry expired under the graph; the sweeper will prune it.
		return nil
	}

	c.logger.Debug("semantic cache hit",
		slog.String("segment", segment),
		slog.Float64("similarity", similarity))
	c.recordHit(cacheKey, remaining)
	return rs
}

// Put stores a result set for the query. Failures are logged, not returned:
// a broken cache degrades to uncached operation.
func (c *SemanticCache) Put(ctx context.Context, rawQuery, segment string, rs *corpus.ResultSet) {
	if c.store == nil || rs == nil {
		return
	}

	e := entry{Query: query.Normalize(rawQuery), Segment: segment, Results: *rs}

	if c.embedder != nil {
		vectors, err := c.embedder.Embed(ctx, []string{e.Query})
		if err == nil && len(vectors) == 1 {
			e.Vector = vectors[0]
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("cache entry marshal failed", slog.String("error", err.Error()))
		return
	}

	key := Key(rawQuery, segment)
	if err := c.store.SetTTL(key, data, c.cfg.TTL); err != nil {
		c.logger.Warn("cache write failed", slog.String("error", err.Error()))
		return
	}

	if e.Vector != nil {
		c.segment(segment).add(key, e.Vector)
	}
}

// Stats reports cumulative hit and miss counts.
func (c *SemanticCache) Stats() (hits, misses uint64) {
	if c.store == nil {
		return 0, 0
	}
	return c.store.Counter(statHitsKey), c.store.Counter(statMissesKey)
}

// RebuildSegments reconstructs every segment similarity index from the live
// entries in the store, dropping graph nodes whose entries expired. The
// sweeper calls this periodically.
func (c *SemanticCache) RebuildSegments() {
	if c.store == nil {
		return
	}

	start := time.Now()
	fresh := make(map[string]*segmentIndex)
	entries := 0

	err := c.store.ScanPrefix(queryPrefix, func(key string, value []byte) error {
		var e entry
		if err := json.Unmarshal(value, &e); err != nil || e.Vector == nil {
			return nil
		}
		si, ok := fresh[e.Segment]
		if !ok {
			si = newSegmentIndex()
			fresh[e.Segment] = si
		}
		si.add(key, e.Vector)
		entries++
		return nil
	})
	if err != nil {
		c.logger.Warn("cache segment rebuild failed", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	c.segments = fresh
	c.mu.Unlock()

	c.logger.Debug("cache segments rebuilt",
		slog.Int("segments", len(fresh)),
		slog.Int("entries", entries),
		slog.Duration("latency", time.Since(start)))
}

func (c *SemanticCache) segment(name string) *segmentIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	si, ok := c.segments[name]
	if !ok {
		si = newSegmentIndex()
		c.segments[name] = si
	}
	return si
}

// loadEntry reads a cached result set and the payload's remaining lifetime.
func (c *SemanticCache) loadEntry(key string) (*corpus.ResultSet, time.Duration) {
	data, remaining, err := c.store.GetWithTTL(key)
	if err != nil {
		return nil, 0
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("cache entry corrupt, deleting", slog.String("key", key))
		_ = c.store.Delete(key)
		return nil, 0
	}
	return &e.Results, remaining
}

// recordHit bumps the global hit counter and the per-entry popularity
// counter. The per-entry counter expires with the payload, never after it.
func (c *SemanticCache) recordHit(key string, remaining time.Duration) {
	if _, err := c.store.IncrCounter(statHitsKey, 0); err != nil {
		return
	}
	_, _ = c.store.IncrCounter(hitsPrefix+key, remaining)
}
