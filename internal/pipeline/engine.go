package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clearlaw/lexengine/internal/cache"
	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/expand"
	"github.com/clearlaw/lexengine/internal/fusion"
	"github.com/clearlaw/lexengine/internal/lexical"
	"github.com/clearlaw/lexengine/internal/query"
	"github.com/clearlaw/lexengine/internal/rerank"
	"github.com/clearlaw/lexengine/internal/vector"
)

// targetFor mirrors the reranker's complexity-adaptive selection size so
// fast paths and fallbacks agree with the model path on result counts.
func targetFor(c query.Complexity) int {
	return rerank.TargetSize(c)
}

// Engine runs the retrieval pipeline. Construct once, share across
// requests; every component is safe for concurrent use.
type Engine struct {
	processor *query.Processor
	lexical   *lexical.Provider
	vector    *vector.Provider
	fuser     *fusion.Fuser
	reranker  *rerank.Reranker
	expander  *expand.Expander
	cache     *cache.SemanticCache
	logger    *slog.Logger
}

// NewEngine wires the pipeline. vector, expander and cache may be nil, in
// which case the pipeline degrades: lexical-only retrieval, no expansion,
// no caching.
func NewEngine(
	processor *query.Processor,
	lex *lexical.Provider,
	vec *vector.Provider,
	fuser *fusion.Fuser,
	reranker *rerank.Reranker,
	expander *expand.Expander,
	semCache *cache.SemanticCache,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if fuser == nil {
		fuser = fusion.NewFuser(fusion.DefaultRRFK, fusion.DefaultWeights())
	}
	if reranker == nil {
		reranker = rerank.NewReranker(nil, logger)
	}
	return &Engine{
		processor: processor,
		lexical:   lex,
		vector:    vec,
		fuser:     fuser,
		reranker:  reranker,
		expander:  expander,
		cache:     semCache,
		logger:    logger,
	}
}

// Retrieve answers one query. The only errors returned are validation
// errors on the caller's input; every internal failure degrades and is
// reflected in the result set's confidence instead.
func (e *Engine) Retrieve(ctx context.Context, rawQuery string, opts Options) (*corpus.ResultSet, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := e.logger.With(slog.String("request_id", requestID))
	start := time.Now()

	// Cache first: the key needs only the raw query and segment, so a hit
	// skips query processing and any alias catalog refresh it might trigger.
	if e.cache != nil && !opts.SkipCache {
		if rs := e.cache.Get(ctx, rawQuery, opts.Segment); rs != nil {
			logger.Info("retrieval served from cache",
				slog.String("segment", opts.Segment),
				slog.Duration("latency", time.Since(start)))
			return rs, nil
		}
	}

	proc, err := e.processor.Process(ctx, rawQuery)
	if err != nil {
		return nil, err
	}

	var (
		results  []*corpus.RetrievalResult
		degraded bool
	)

	switch proc.Intent {
	case query.IntentSectionLookup:
		results = e.sectionFastPath(ctx, proc, opts, logger)
	case query.IntentStatuteLookup:
		results = e.statuteFastPath(ctx, proc, opts, logger)
	}

	// Fast paths fall through to the full pipeline when they find nothing;
	// an unresolved citation still deserves a best-effort answer.
	if len(results) == 0 {
		results, degraded = e.hybridRetrieve(ctx, proc, opts, logger)
	} else {
		e.hydrate(ctx, results)
	}

	results = filterByDate(results, dateCutoff(proc, opts))
	results = filterByScore(results, opts.MinScore)

	if e.expander != nil && !opts.SkipExpansion {
		e.expander.Expand(ctx, results)
	}

	rs := &corpus.ResultSet{
		Results:    results,
		Confidence: scoreConfidence(results, degraded),
		CreatedAt:  time.Now(),
	}

	if e.cache != nil && !opts.SkipCache && len(results) > 0 {
		e.cache.Put(ctx, rawQuery, opts.Segment, rs)
	}

	logger.Info("retrieval complete",
		slog.String("intent", string(proc.Intent)),
		slog.String("complexity", string(proc.Complexity)),
		slog.Int("results", len(results)),
		slog.Float64("confidence", rs.Confidence),
		slog.Bool("degraded", degraded),
		slog.Duration("latency", time.Since(start)))
	return rs, nil
}

// sectionFastPath serves "section N of the X Act" directly from the index
// metadata, skipping fusion and reranking.
func (e *Engine) sectionFastPath(ctx context.Context, proc *query.Processed, opts Options, logger *slog.Logger) []*corpus.RetrievalResult {
	results := e.lexical.SectionLookup(ctx, proc.Chapter, proc.Section)
	if len(results) == 0 {
		logger.Debug("section lookup found nothing, falling back to hybrid",
			slog.String("chapter", proc.Chapter),
			slog.String("section", proc.Section))
		return nil
	}
	return capResults(results, opts.finalCount(proc.Complexity))
}

// statuteFastPath serves whole-statute questions from chapter metadata.
func (e *Engine) statuteFastPath(ctx context.Context, proc *query.Processed, opts Options, logger *slog.Logger) []*corpus.RetrievalResult {
	limit := opts.finalCount(proc.Complexity)
	results := e.lexical.ChapterLookup(ctx, proc.Chapter, limit)
	if len(results) == 0 {
		logger.Debug("chapter lookup found nothing, falling back to hybrid",
			slog.String("chapter", proc.Chapter))
		return nil
	}
	return results
}

// hybridRetrieve runs sparse and dense retrieval in parallel, fuses the
// ranked lists, and selects the final slice. The degraded flag reports
// whether any stage fell back from its preferred path.
func (e *Engine) hybridRetrieve(ctx context.Context, proc *query.Processed, opts Options, logger *slog.Logger) ([]*corpus.RetrievalResult, bool) {
	var (
		lexResults []*corpus.RetrievalResult
		vecLists   [][]*corpus.RetrievalResult
	)

	variants := proc.Variants
	if opts.ExpansionsCount > 0 && len(variants) > opts.ExpansionsCount {
		variants = variants[:opts.ExpansionsCount]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResults = e.lexical.Search(gctx, proc.Normalized, opts.TopKPerVariant)
		return nil
	})
	if e.vector != nil {
		g.Go(func() error {
			vecLists = e.vector.SearchVariants(gctx, variants, opts.TopKPerVariant)
			return nil
		})
	}
	_ = g.Wait()

	vecResults := fusion.MergeVariants(vecLists)
	degraded := e.vector != nil && len(vecResults) == 0

	fuser := e.fuser
	if opts.RRFK > 0 {
		fuser = fusion.NewFuser(opts.RRFK, fusion.DefaultWeights())
	}
	fused := fuser.Fuse(lexResults, vecResults)
	if len(fused) == 0 {
		logger.Warn("no candidates from any provider")
		return nil, true
	}

	e.hydrate(ctx, fused)

	selected := e.reranker.Rerank(ctx, proc.Raw, fused, proc.Complexity, opts.MaxPerDoc)
	for _, r := range selected {
		if r.Prov(corpus.ProvRerank) == "fallback" {
			degraded = true
			break
		}
	}

	return capResults(selected, opts.finalCount(proc.Complexity)), degraded
}

// hydrate fetches chunk text for results whose index entry carried metadata
// only. The reranker scores passages and callers read them, so text has to
// be present before either.
func (e *Engine) hydrate(ctx context.Context, results []*corpus.RetrievalResult) {
	if e.expander != nil {
		e.expander.Hydrate(ctx, results)
	}
}

// dateCutoff resolves the temporal filter: an explicit date phrase in the
// query wins over the caller-supplied option.
func dateCutoff(proc *query.Processed, opts Options) *query.DateContext {
	if proc.DateCtx != nil {
		return proc.DateCtx
	}
	if !opts.AsAtDate.IsZero() {
		return &query.DateContext{Op: query.DateAsAt, Date: opts.AsAtDate}
	}
	return nil
}

// filterByDate drops chunks whose statute year falls outside the temporal
// constraint. Chunks without a year survive; losing a result over missing
// metadata is worse than a possible anachronism the synthesis layer can
// flag.
func filterByDate(results []*corpus.RetrievalResult, dc *query.DateContext) []*corpus.RetrievalResult {
	if dc == nil {
		return results
	}
	out := results[:0:len(results)]
	for _, r := range results {
		year := 0
		if r.Chunk != nil {
			year = r.Chunk.Year
		}
		if year == 0 || dc.AllowsYear(year) {
			out = append(out, r)
		}
	}
	return out
}

func filterByScore(results []*corpus.RetrievalResult, minScore float64) []*corpus.RetrievalResult {
	if minScore <= 0 {
		return results
	}
	out := results[:0:len(results)]
	for _, r := range results {
		if r.Confidence >= minScore {
			out = append(out, r)
		}
	}
	return out
}

func capResults(results []*corpus.RetrievalResult, limit int) []*corpus.RetrievalResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
