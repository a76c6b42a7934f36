// Package expand implements small-to-big context expansion: after selection,
// each surviving chunk's text is replaced with its parent document's content
// so the synthesis layer sees full statutory context, not fragments.
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

// maxConcurrentFetches bounds parallel parent document fetches per request.
const maxConcurrentFetches = 8

// Expander fetches parent documents from object storage and swaps chunk
// text for parent content.
type Expander struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewExpander creates the expander.
func NewExpander(store storage.ObjectStore, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{store: store, logger: logger}
}

// parentKey identifies one parent document fetch. Two chunks from the same
// parent share a single fetch.
type parentKey struct {
	docID   string
	docType corpus.DocType
}

// Expand replaces each result's chunk text with its parent document's text,
// keeping the original chunk text in provenance for citation. Fetches are
// deduplicated per parent and bounded in concurrency. A failed fetch leaves
// that result unexpanded; expansion never fails the request.
func (e *Expander) Expand(ctx context.Context, results []*corpus.RetrievalResult) {
	if len(results) == 0 {
		return
	}

	start := time.Now()

	wanted := make(map[parentKey][]*corpus.RetrievalResult)
	for _, r := range results {
		if r.Chunk == nil || r.Chunk.ParentDocID == "" {
			continue
		}
		key := parentKey{docID: r.Chunk.ParentDocID, docType: r.Chunk.DocType}
		wanted[key] = append(wanted[key], r)
	}
	if len(wanted) == 0 {
		return
	}

	type fetched struct {
		key parentKey
		doc *corpus.ParentDocument
	}
	fetchedCh := make(chan fetched, len(wanted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for key := range wanted {
		g.Go(func() error {
			doc, err := e.fetchParent(gctx, key)
			if err != nil {
				e.logger.Warn("parent document fetch failed, result stays unexpanded",
					slog.String("parent_doc_id", key.docID),
					slog.String("doc_type", string(key.docType)),
					slog.String("error", err.Error()))
				return nil
			}
			fetchedCh <- fetched{key: key, doc: doc}
			return nil
		})
	}
	_ = g.Wait()
	close(fetchedCh)

	expanded := 0
	for f := range fetchedCh {
		for _, r := range wanted[f.key] {
			r.SetProv(corpus.ProvOriginalText, r.Chunk.Text)
			r.Chunk.Text = f.doc.Text
			r.Parent = f.doc
			r.SetProv(corpus.ProvExpanded, "true")
			expanded++
		}
	}

	e.logger.Debug("context expansion",
		slog.Int("results", len(results)),
		slog.Int("parents", len(wanted)),
		slog.Int("expanded", expanded),
		slog.Duration("latency", time.Since(start)))
}

func (e *Expander) fetchParent(ctx context.Context, key parentKey) (*corpus.ParentDocument, error) {
	data, err := e.store.Get(ctx, storage.DocKey(key.docType, key.docID))
	if err != nil {
		return nil, err
	}
	var doc corpus.ParentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
