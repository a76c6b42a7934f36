package rerank

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/query"
)

const (
	// maxPassageLen truncates candidate text before scoring. Cross-encoder
	// latency grows with passage length and the opening of a statute chunk
	// carries most of its relevance signal.
	maxPassageLen = 500

	// qualityFloor drops model-scored candidates below this relevance.
	qualityFloor = 0.3

	// floorException keeps this many top candidates when the floor would
	// otherwise empty the list. Returning nothing helps nobody downstream.
	floorException = 3

	// diversityFraction sets the per-document cap relative to the target
	// size. A single statute should not crowd out every other source.
	diversityFraction = 0.4
)

// targetSizes maps query complexity to how many candidates survive
// selection. Broader questions need more supporting passages.
var targetSizes = map[query.Complexity]int{
	query.ComplexitySimple:   5,
	query.ComplexityModerate: 8,
	query.ComplexityComplex:  12,
	query.ComplexityExpert:   15,
}

// TargetSize returns the selection size for a complexity level. Unknown
// levels get the moderate size.
func TargetSize(c query.Complexity) int {
	if t, ok := targetSizes[c]; ok {
		return t
	}
	return targetSizes[query.ComplexityModerate]
}

// Reranker selects the final candidate slice, preferring cross-encoder
// scores and degrading deterministically to fused order.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

// NewReranker creates the reranker. A nil scorer disables the model path
// entirely; selection then always uses fused order.
func NewReranker(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores candidates against the query and returns the selected top
// slice. Every returned result is tagged with how it was selected so the
// synthesis layer can weigh model-ranked and fallback results differently.
// maxPerDoc overrides the soft per-document cap when positive; zero keeps
// the adaptive default. Rerank never fails: any model error falls back to
// fused-score order.
func (r *Reranker) Rerank(ctx context.Context, rawQuery string, candidates []*corpus.RetrievalResult, complexity query.Complexity, maxPerDoc int) []*corpus.RetrievalResult {
	target := TargetSize(complexity)
	if maxPerDoc <= 0 {
		maxPerDoc = perDocCap(target)
	}
	if len(candidates) == 0 {
		return nil
	}

	if r.scorer == nil || !r.scorer.Available(ctx) {
		return r.fallback(candidates, target, maxPerDoc)
	}

	start := time.Now()
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = truncate(c.Chunk.Text, maxPassageLen)
	}

	scores, err := r.scorer.Score(ctx, rawQuery, passages)
	if err != nil {
		r.logger.Warn("rerank scoring failed, using fused order",
			slog.Int("candidates", len(candidates)),
			slog.String("error", err.Error()))
		return r.fallback(candidates, target, maxPerDoc)
	}

	type scoredCandidate struct {
		result *corpus.RetrievalResult
		score  float64
	}
	ranked := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = scoredCandidate{result: c, score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	// Quality floor, with an exception when it would empty the list.
	kept := ranked[:0:len(ranked)]
	for _, sc := range ranked {
		if sc.score >= qualityFloor {
			kept = append(kept, sc)
		}
	}
	if len(kept) == 0 {
		n := floorException
		if n > len(ranked) {
			n = len(ranked)
		}
		kept = ranked[:n]
		r.logger.Warn("all rerank scores below quality floor, keeping best anyway",
			slog.Int("kept", n),
			slog.Float64("best_score", ranked[0].score))
	}

	ordered := make([]*corpus.RetrievalResult, 0, len(kept))
	for _, sc := range kept {
		sc.result.SetConfidence(sc.score)
		sc.result.SetProv(corpus.ProvRerankScore, strconv.FormatFloat(sc.score, 'f', 4, 64))
		sc.result.SetProv(corpus.ProvRerank, "model")
		ordered = append(ordered, sc.result)
	}

	selected := selectDiverse(ordered, target, maxPerDoc)

	r.logger.Debug("rerank",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(selected)),
		slog.String("complexity", string(complexity)),
		slog.Duration("latency", time.Since(start)))
	return selected
}

// fallback selects the top slice in fused-score order, tagging each result
// so consumers know no model ranking happened.
func (r *Reranker) fallback(candidates []*corpus.RetrievalResult, target, maxPerDoc int) []*corpus.RetrievalResult {
	selected := selectDiverse(candidates, target, maxPerDoc)
	for _, s := range selected {
		s.SetProv(corpus.ProvRerank, "fallback")
	}
	return selected
}

// selectDiverse takes up to target results in order, capping how many come
// from any single parent document. The cap is a preference, not a hard
// limit: if honoring it leaves the selection short, capped-out candidates
// fill the remainder in order.
func selectDiverse(ordered []*corpus.RetrievalResult, target, docCap int) []*corpus.RetrievalResult {
	if target <= 0 || len(ordered) == 0 {
		return nil
	}

	perDoc := make(map[string]int)
	selected := make([]*corpus.RetrievalResult, 0, target)
	var skipped []*corpus.RetrievalResult

	for _, res := range ordered {
		if len(selected) >= target {
			break
		}
		doc := res.Chunk.ParentDocID
		if doc != "" && perDoc[doc] >= docCap {
			skipped = append(skipped, res)
			continue
		}
		perDoc[doc]++
		selected = append(selected, res)
	}

	for _, res := range skipped {
		if len(selected) >= target {
			break
		}
		selected = append(selected, res)
	}
	return selected
}

// perDocCap is the soft per-document limit for a given target size.
func perDocCap(target int) int {
	limit := int(math.Ceil(diversityFraction * float64(target)))
	if limit < 2 {
		limit = 2
	}
	return limit
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
