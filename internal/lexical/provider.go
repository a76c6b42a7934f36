// Package lexical serves ranked hits from a precomputed sparse index over
// the corpus. The index snapshot is built offline, stored in object storage,
// and loaded lazily on first use with a local-file fallback.
package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/storage"
)

// loadState is the lifecycle of the lazily loaded snapshot.
type loadState int

const (
	stateUnloaded loadState = iota
	stateLoading
	stateLoaded
	stateFailed
)

// Config configures the lexical provider.
type Config struct {
	// K1 is the BM25 term frequency saturation parameter (default: 1.2).
	K1 float64
	// B is the BM25 length normalization parameter (default: 0.75).
	B float64
	// LocalPath is the on-disk fallback copy of the index snapshot,
	// used when object storage is unreachable. Empty disables fallback.
	LocalPath string
}

// DefaultConfig returns the default BM25 parameters.
func DefaultConfig() Config {
	return Config{K1: DefaultK1, B: DefaultB}
}

// Provider is the lexical search provider. Searches never fail across the
// public boundary: every internal error degrades to an empty result list
// and a log line.
type Provider struct {
	store  storage.ObjectStore
	cfg    Config
	logger *slog.Logger

	// Lazy singleton load with double-checked locking. The first caller
	// triggers the load; concurrent callers wait on done rather than
	// duplicating the fetch. failed is terminal for the process.
	mu       sync.Mutex
	state    loadState
	done     chan struct{}
	snapshot *Snapshot
}

// NewProvider creates the provider. Nothing is loaded until first use.
func NewProvider(store storage.ObjectStore, cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B <= 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &Provider{
		store:  store,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Search returns up to topK ranked results for the query. Side-effect-free
// aside from the lazy index load.
func (p *Provider) Search(ctx context.Context, query string, topK int) []*corpus.RetrievalResult {
	start := time.Now()

	snap := p.ensureLoaded(ctx)
	if snap == nil {
		return nil
	}

	hits := snap.Search(query, topK, p.cfg.K1, p.cfg.B)
	if len(hits) == 0 {
		p.logger.Debug("lexical search empty",
			slog.String("query", query),
			slog.Duration("latency", time.Since(start)))
		return nil
	}

	maxScore := hits[0].score
	results := make([]*corpus.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		conf := h.score / maxScore // provider scale, clipped to <=1.0 by construction
		r := corpus.NewResult(snap.Chunks[h.chunk].AsChunk(), conf, "lexical")
		r.SetProv(corpus.ProvLexicalScore, strconv.FormatFloat(h.score, 'f', 4, 64))
		results = append(results, r)
	}

	p.logger.Debug("lexical search",
		slog.Int("results", len(results)),
		slog.Duration("latency", time.Since(start)))
	return results
}

// SectionLookup returns chunks matching a chapter and section number,
// bypassing scoring entirely. Used by the section-lookup fast path.
func (p *Provider) SectionLookup(ctx context.Context, chapter, section string) []*corpus.RetrievalResult {
	snap := p.ensureLoaded(ctx)
	if snap == nil {
		return nil
	}

	metas := snap.FindSection(chapter, section)
	results := make([]*corpus.RetrievalResult, 0, len(metas))
	for _, m := range metas {
		results = append(results, corpus.NewResult(m.AsChunk(), 0.95, "section_lookup"))
	}
	return results
}

// ChapterLookup returns up to limit chunks for a chapter in document order.
// Used by the statute-lookup fast path.
func (p *Provider) ChapterLookup(ctx context.Context, chapter string, limit int) []*corpus.RetrievalResult {
	snap := p.ensureLoaded(ctx)
	if snap == nil {
		return nil
	}

	metas := snap.FindChapter(chapter, limit)
	results := make([]*corpus.RetrievalResult, 0, len(metas))
	for _, m := range metas {
		results = append(results, corpus.NewResult(m.AsChunk(), 0.85, "statute_lookup"))
	}
	return results
}

// Loaded reports whether the snapshot is resident, for the doctor command.
func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateLoaded
}

// ensureLoaded returns the snapshot, loading it on first call. Returns nil
// when loading failed; failure is terminal for the process lifetime.
func (p *Provider) ensureLoaded(ctx context.Context) *Snapshot {
	p.mu.Lock()
	switch p.state {
	case stateLoaded:
		snap := p.snapshot
		p.mu.Unlock()
		return snap
	case stateFailed:
		p.mu.Unlock()
		return nil
	case stateLoading:
		done := p.done
		p.mu.Unlock()
		// Await the in-flight load rather than duplicating it.
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
		p.mu.Lock()
		snap := p.snapshot
		p.mu.Unlock()
		return snap
	}

	// This caller owns the load.
	p.state = stateLoading
	done := p.done
	p.mu.Unlock()

	snap, err := p.load(ctx)

	p.mu.Lock()
	if err != nil {
		p.state = stateFailed
	} else {
		p.state = stateLoaded
		p.snapshot = snap
	}
	close(done)
	p.mu.Unlock()

	return snap
}

// load fetches the snapshot from object storage, falling back to the local
// on-disk copy. Logs latency and corpus size for postmortem either way.
func (p *Provider) load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	data, err := p.store.Get(ctx, storage.IndexKey())
	source := "remote"
	if err != nil {
		p.logger.Warn("remote index load failed, trying local copy",
			slog.String("error", err.Error()),
			slog.String("local_path", p.cfg.LocalPath))
		if p.cfg.LocalPath == "" {
			return nil, err
		}
		data, err = os.ReadFile(p.cfg.LocalPath)
		if err != nil {
			p.logger.Error("lexical index unavailable",
				slog.String("error", err.Error()),
				slog.Duration("latency", time.Since(start)))
			return nil, fmt.Errorf("load index: %w", err)
		}
		source = "local"
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		p.logger.Error("lexical index corrupt",
			slog.String("source", source),
			slog.String("error", err.Error()),
			slog.Duration("latency", time.Since(start)))
		return nil, err
	}

	p.logger.Info("lexical index loaded",
		slog.String("source", source),
		slog.String("version", snap.Version),
		slog.Int("chunks", len(snap.Chunks)),
		slog.Int("terms", len(snap.Postings)),
		slog.Duration("latency", time.Since(start)))
	return snap, nil
}
