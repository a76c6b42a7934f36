// Package storage provides read-only access to the corpus object store.
// The engine only ever reads: the lexical index snapshot, per-chunk JSON
// blobs, per-parent-document JSON blobs, and the statute catalog.
package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/clearlaw/lexengine/internal/corpus"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = fmt.Errorf("object not found")

// ObjectStore is a key-addressed blob store.
type ObjectStore interface {
	// Get reads the blob at key. Returns ErrNotFound (possibly wrapped)
	// when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key layout under the corpus bucket. The offline ingestion pipeline writes
// these; the engine only reads them.
const (
	indexKey   = "index/lexical.json"
	catalogKey = "catalog/statutes.json"
)

// IndexKey returns the object key for the lexical index snapshot.
func IndexKey() string { return indexKey }

// CatalogKey returns the object key for the statute catalog.
func CatalogKey() string { return catalogKey }

// ChunkKey returns the object key for a chunk blob.
func ChunkKey(docType corpus.DocType, chunkID string) string {
	return path.Join("chunks", string(docType), chunkID+".json")
}

// DocKey returns the object key for a parent document blob.
func DocKey(docType corpus.DocType, docID string) string {
	return path.Join("docs", string(docType), docID+".json")
}
