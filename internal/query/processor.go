// Package query turns a raw legal question into a structured, normalized
// form: temporal context, statute/section references, intent, complexity,
// and reformulated variants for the vector provider.
package query

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clearlaw/lexengine/internal/errors"
)

// Intent selects the retrieval path for a query.
type Intent string

const (
	// IntentSectionLookup: a specific section of an identified statute.
	// Served by the lexical fast path before any fusion or reranking.
	IntentSectionLookup Intent = "section_lookup"
	// IntentStatuteLookup: a statute is named but no section.
	IntentStatuteLookup Intent = "statute_lookup"
	// IntentGeneralQuestion: everything else; full hybrid pipeline.
	IntentGeneralQuestion Intent = "general_question"
)

// Complexity drives the reranker's adaptive target size.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// Processed is the structured form of a raw query.
type Processed struct {
	Raw        string
	Normalized string // date phrase removed
	DateCtx    *DateContext
	Section    string // "12C" or ""
	Chapter    string // "28:01" or ""
	Statutes   []AliasMatch
	Intent     Intent
	Complexity Complexity
	Variants   []string
}

// processedCacheSize bounds the LRU of processed queries. Entries are small;
// repeated questions are common enough to make this worthwhile.
const processedCacheSize = 4096

// Processor normalizes and enriches raw queries.
type Processor struct {
	resolver    *AliasResolver
	maxVariants int
	logger      *slog.Logger
	cache       *lru.Cache[string, *Processed]
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithMaxVariants caps how many reformulations Process generates.
func WithMaxVariants(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxVariants = n
		}
	}
}

// NewProcessor creates a query processor. The resolver may be nil, in which
// case statute detection is disabled and every query is a general question
// unless it carries an explicit chapter reference.
func NewProcessor(resolver *AliasResolver, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, *Processed](processedCacheSize)
	p := &Processor{
		resolver:    resolver,
		maxVariants: DefaultMaxVariants,
		logger:      logger,
		cache:       cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process normalizes the raw query and extracts date context, statute and
// section references, intent, complexity, and variants. Empty queries are
// the caller's programmer error.
func (p *Processor) Process(ctx context.Context, raw string) (*Processed, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	if cached, ok := p.cache.Get(raw); ok {
		return cached, nil
	}

	normalized := Normalize(raw)
	normalized, dateCtx := ExtractDateContext(normalized)

	proc := &Processed{
		Raw:        raw,
		Normalized: normalized,
		DateCtx:    dateCtx,
		Section:    ExtractSection(normalized),
		Chapter:    ExtractChapter(normalized),
	}

	if p.resolver != nil {
		proc.Statutes = p.resolver.Resolve(ctx, normalized)
	}
	if proc.Chapter == "" && len(proc.Statutes) > 0 {
		proc.Chapter = proc.Statutes[0].Chapter
	}

	proc.Intent = classifyIntent(proc)
	proc.Complexity = classifyComplexity(proc)
	proc.Variants = Reformulate(proc, p.maxVariants)

	p.logger.Debug("query processed",
		slog.String("intent", string(proc.Intent)),
		slog.String("complexity", string(proc.Complexity)),
		slog.String("section", proc.Section),
		slog.String("chapter", proc.Chapter),
		slog.Int("statutes", len(proc.Statutes)),
		slog.Int("variants", len(proc.Variants)))

	p.cache.Add(raw, proc)
	return proc, nil
}

// classifyIntent is rule-based, not ML: a section plus an identified statute
// or chapter is a section lookup; a statute alone is a statute lookup.
func classifyIntent(p *Processed) Intent {
	hasStatute := len(p.Statutes) > 0 || p.Chapter != ""
	switch {
	case p.Section != "" && hasStatute:
		return IntentSectionLookup
	case len(p.Statutes) > 0:
		return IntentStatuteLookup
	default:
		return IntentGeneralQuestion
	}
}

var conjunctionMarkers = []string{" and ", " or ", " versus ", " vs ", "difference between", "compare"}

// classifyComplexity estimates how broad an answer the query needs.
// More statutes, conjunctions and temporal constraints mean the reranker
// should keep more candidates.
func classifyComplexity(p *Processed) Complexity {
	tokens := len(strings.Fields(p.Normalized))

	refs := len(p.Statutes)
	if p.Section != "" {
		refs++
	}
	if p.Chapter != "" && len(p.Statutes) == 0 {
		refs++
	}

	conj := false
	for _, m := range conjunctionMarkers {
		if strings.Contains(p.Normalized, m) {
			conj = true
			break
		}
	}

	switch {
	case refs >= 3 || (refs >= 2 && p.DateCtx != nil) || tokens > 20:
		return ComplexityExpert
	case conj || refs >= 2 || tokens > 12:
		return ComplexityComplex
	case tokens <= 4 && refs <= 1:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}
