package vector

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/embed"
)

// Provider is the dense retrieval provider: embeds query variants and runs
// nearest-neighbor searches against the vector index. Like the lexical
// provider, it never fails across the public boundary; every internal error
// degrades to empty results and a log line.
type Provider struct {
	client   *Client
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewProvider creates the provider.
func NewProvider(client *Client, embedder embed.Embedder, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, embedder: embedder, logger: logger}
}

// Healthy reports whether the vector index service is reachable.
func (p *Provider) Healthy(ctx context.Context) bool {
	return p.client.Healthy(ctx)
}

// SearchVariants runs one nearest-neighbor search per query variant and
// returns the per-variant ranked lists, in variant order. All variants are
// embedded in a single batched call; the searches then fan out in parallel.
// An unhealthy service or a failed embed yields nil, never an error.
func (p *Provider) SearchVariants(ctx context.Context, variants []string, topK int) [][]*corpus.RetrievalResult {
	if len(variants) == 0 || topK <= 0 {
		return nil
	}

	start := time.Now()

	if !p.client.Healthy(ctx) {
		p.logger.Warn("vector service unhealthy, skipping dense retrieval")
		return nil
	}

	vectors, err := p.embedder.Embed(ctx, variants)
	if err != nil {
		p.logger.Warn("variant embedding failed, skipping dense retrieval",
			slog.Int("variants", len(variants)),
			slog.String("error", err.Error()))
		return nil
	}

	lists := make([][]*corpus.RetrievalResult, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		g.Go(func() error {
			results, err := p.client.Search(gctx, vectors[i], topK, nil)
			if err != nil {
				// One failed variant does not sink the rest.
				p.logger.Warn("vector search failed for variant",
					slog.Int("variant", i),
					slog.String("error", err.Error()))
				return nil
			}
			lists[i] = results
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	p.logger.Debug("vector search",
		slog.Int("variants", len(variants)),
		slog.Int("results", total),
		slog.Duration("latency", time.Since(start)))
	return lists
}

// Search runs a single-variant search.
func (p *Provider) Search(ctx context.Context, query string, topK int) []*corpus.RetrievalResult {
	lists := p.SearchVariants(ctx, []string{query}, topK)
	if len(lists) == 0 {
		return nil
	}
	return lists[0]
}
