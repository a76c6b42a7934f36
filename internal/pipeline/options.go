// Package pipeline orchestrates the full retrieval flow: query processing,
// cache lookup, parallel sparse and dense retrieval, rank fusion, rerank
// selection, context expansion, and confidence scoring.
package pipeline

import (
	"fmt"
	"time"

	"github.com/clearlaw/lexengine/internal/errors"
	"github.com/clearlaw/lexengine/internal/query"
)

// Defaults for retrieval options.
const (
	// DefaultTopKPerVariant is how many candidates each provider returns
	// per query variant before fusion.
	DefaultTopKPerVariant = 20

	// maxTopK bounds the final result count a caller may request.
	maxTopK = 50

	// maxExpansions bounds the per-request query reformulation cap.
	maxExpansions = 8
)

// Options control one retrieval request. The zero value is usable; every
// field has a sensible default.
type Options struct {
	// TopK caps the final result count. Zero means the reranker's adaptive
	// target decides.
	TopK int

	// TopKPerVariant is the per-provider, per-variant candidate count.
	TopKPerVariant int

	// MinScore drops final results below this confidence. Zero keeps all.
	MinScore float64

	// AsAtDate filters out chunks from statutes enacted after this date.
	// Zero time disables filtering; a date phrase in the query overrides it.
	AsAtDate time.Time

	// RRFK overrides the rank fusion smoothing constant. Zero uses the
	// default.
	RRFK int

	// MaxPerDoc overrides the soft per-parent-document cap applied during
	// selection. Zero keeps the adaptive default.
	MaxPerDoc int

	// ExpansionsCount caps how many query reformulations feed dense
	// retrieval, counting the normalized query itself. Zero keeps every
	// variant the processor produced.
	ExpansionsCount int

	// SkipCache bypasses the semantic cache for this request.
	SkipCache bool

	// SkipExpansion leaves chunk text as-is instead of substituting parent
	// document content. Used when the caller wants citation-sized excerpts.
	SkipExpansion bool

	// Segment names the corpus segment for cache partitioning. Empty means
	// the default segment.
	Segment string
}

// normalize fills defaults and validates caller input. Validation errors
// are the only errors Retrieve propagates.
func (o *Options) normalize() error {
	if o.TopK < 0 || o.TopK > maxTopK {
		return errors.New(errors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be in [0, %d], got %d", maxTopK, o.TopK), nil)
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("min_score must be in [0, 1], got %g", o.MinScore), nil)
	}
	if o.MaxPerDoc < 0 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("max_per_doc must be non-negative, got %d", o.MaxPerDoc), nil)
	}
	if o.ExpansionsCount < 0 || o.ExpansionsCount > maxExpansions {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("expansions_count must be in [0, %d], got %d", maxExpansions, o.ExpansionsCount), nil)
	}
	if o.TopKPerVariant <= 0 {
		o.TopKPerVariant = DefaultTopKPerVariant
	}
	if o.Segment == "" {
		o.Segment = "default"
	}
	return nil
}

// finalCount resolves the result count for this request: the explicit TopK
// when set, otherwise the complexity-adaptive target.
func (o *Options) finalCount(complexity query.Complexity) int {
	if o.TopK > 0 {
		return o.TopK
	}
	return targetFor(complexity)
}
