package expand

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/storage"
)

// chunkRef identifies one chunk blob fetch. Duplicate hits on the same
// chunk share a single fetch.
type chunkRef struct {
	id      string
	docType corpus.DocType
}

// Hydrate fills in text for results whose index entry carries metadata
// only, reading the chunk blobs from object storage. The index snapshot may
// omit chunk text to stay small; scoring and display both need the words.
// Fetches are deduplicated and bounded like parent fetches, and a missing
// or corrupt blob leaves that result as-is.
func (e *Expander) Hydrate(ctx context.Context, results []*corpus.RetrievalResult) {
	wanted := make(map[chunkRef][]*corpus.RetrievalResult)
	for _, r := range results {
		if r.Chunk == nil || r.Chunk.ID == "" || r.Chunk.Text != "" {
			continue
		}
		ref := chunkRef{id: r.Chunk.ID, docType: r.Chunk.DocType}
		wanted[ref] = append(wanted[ref], r)
	}
	if len(wanted) == 0 {
		return
	}

	start := time.Now()

	type fetchedChunk struct {
		ref   chunkRef
		chunk *corpus.Chunk
	}
	fetchedCh := make(chan fetchedChunk, len(wanted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for ref := range wanted {
		g.Go(func() error {
			data, err := e.store.Get(gctx, storage.ChunkKey(ref.docType, ref.id))
			if err != nil {
				e.logger.Warn("chunk blob fetch failed, result stays unhydrated",
					slog.String("chunk_id", ref.id),
					slog.String("doc_type", string(ref.docType)),
					slog.String("error", err.Error()))
				return nil
			}
			var c corpus.Chunk
			if err := json.Unmarshal(data, &c); err != nil {
				e.logger.Warn("chunk blob corrupt, result stays unhydrated",
					slog.String("chunk_id", ref.id),
					slog.String("error", err.Error()))
				return nil
			}
			fetchedCh <- fetchedChunk{ref: ref, chunk: &c}
			return nil
		})
	}
	_ = g.Wait()
	close(fetchedCh)

	hydrated := 0
	for f := range fetchedCh {
		for _, r := range wanted[f.ref] {
			r.Chunk.Text = f.chunk.Text
			if len(r.Chunk.Metadata) == 0 {
				r.Chunk.Metadata = f.chunk.Metadata
			}
			hydrated++
		}
	}

	e.logger.Debug("chunk hydration",
		slog.Int("results", len(results)),
		slog.Int("fetched", len(wanted)),
		slog.Int("hydrated", hydrated),
		slog.Duration("latency", time.Since(start)))
}
