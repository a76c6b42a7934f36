// Package corpus defines the data model shared by all retrieval components:
// chunks, parent documents, and scored retrieval results.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocType identifies the kind of legal document a chunk was carved from.
type DocType string

const (
	DocTypeAct          DocType = "act"
	DocTypeSI           DocType = "si" // statutory instrument
	DocTypeOrdinance    DocType = "ordinance"
	DocTypeConstitution DocType = "constitution"
	DocTypeJudgment     DocType = "judgment"
)

// AllDocTypes lists every document type known to the retrieval pipeline.
// The vector provider uses this as the default type filter.
var AllDocTypes = []DocType{
	DocTypeAct, DocTypeSI, DocTypeOrdinance, DocTypeConstitution, DocTypeJudgment,
}

// MaxChunkTextLen is the hard cap on chunk text length. Remote blob fields
// and the vector index both reject larger payloads.
const MaxChunkTextLen = 36000

// Entities holds references extracted from a chunk at ingestion time.
type Entities struct {
	Dates       []string `json:"dates,omitempty"`
	StatuteRefs []string `json:"statute_refs,omitempty"`
	CaseRefs    []string `json:"case_refs,omitempty"`
}

// Chunk is the smallest retrievable unit of a legal document.
// Text may be empty until fetched from object storage.
type Chunk struct {
	ID          string            `json:"id"`
	ParentDocID string            `json:"parent_doc_id"`
	Text        string            `json:"text"`
	SectionPath []string          `json:"section_path,omitempty"`
	TokenCount  int               `json:"token_count"`
	DocType     DocType           `json:"doc_type"`
	Language    string            `json:"language,omitempty"`
	Chapter     string            `json:"chapter,omitempty"`
	Section     string            `json:"section,omitempty"`
	Year        int               `json:"year,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Entities    Entities          `json:"entities,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (c *Chunk) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// SetMeta records a metadata value, allocating the map on first use.
func (c *Chunk) SetMeta(key, value string) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
}

// TreeNode is one structural node of a parent document (part, section,
// subsection). Children preserve document order.
type TreeNode struct {
	Label    string      `json:"label"`
	Heading  string      `json:"heading,omitempty"`
	Text     string      `json:"text,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// ParentDocument is the full source document a chunk belongs to.
type ParentDocument struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Citation string    `json:"citation,omitempty"`
	Chapter  string    `json:"chapter,omitempty"`
	Text     string    `json:"text"` // normalized markdown
	Tree     *TreeNode `json:"tree,omitempty"`
}

// Provenance keys recorded on retrieval results.
const (
	ProvSource       = "source"        // "lexical", "vector", "fused", "section_lookup", "statute_lookup"
	ProvLexicalScore = "lexical_score" // raw BM25 score
	ProvVectorScore  = "vector_score"  // clipped similarity
	ProvFusedScore   = "fused_score"   // RRF score before rerank
	ProvRerank       = "rerank"        // "model" or "fallback"
	ProvRerankScore  = "rerank_score"  // cross-encoder score
	ProvExpanded     = "expanded"      // "true" when parent text substituted
	ProvOriginalText = "original_text" // small chunk text kept for citation
	ProvVariant      = "variant"       // which query variant produced the hit
)

// RetrievalResult is a scored association between a chunk and, after
// expansion, its parent document. The reranker overwrites Confidence in
// place; the expander swaps chunk text for parent content.
type RetrievalResult struct {
	Chunk      *Chunk            `json:"chunk"`
	Parent     *ParentDocument   `json:"parent,omitempty"`
	Confidence float64           `json:"confidence"`
	Provenance map[string]string `json:"provenance,omitempty"`
}

// NewResult creates a result with confidence clipped to [0,1].
func NewResult(chunk *Chunk, confidence float64, source string) *RetrievalResult {
	r := &RetrievalResult{
		Chunk:      chunk,
		Provenance: map[string]string{ProvSource: source},
	}
	r.SetConfidence(confidence)
	return r
}

// SetConfidence assigns the confidence score, clipping into [0,1].
func (r *RetrievalResult) SetConfidence(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	r.Confidence = score
}

// Prov returns the provenance value for key, or "" when absent.
func (r *RetrievalResult) Prov(key string) string {
	if r.Provenance == nil {
		return ""
	}
	return r.Provenance[key]
}

// SetProv records a provenance value, allocating the map on first use.
func (r *RetrievalResult) SetProv(key, value string) {
	if r.Provenance == nil {
		r.Provenance = make(map[string]string)
	}
	r.Provenance[key] = value
}

// ResultSet is what the pipeline hands to the synthesis layer, and what the
// semantic cache serializes.
type ResultSet struct {
	Results    []*RetrievalResult `json:"results"`
	Confidence float64            `json:"confidence"`
	CreatedAt  time.Time          `json:"created_at"`
}

// DocIDFromSource derives a content-addressable document ID from the source
// storage key. Re-ingesting the same source yields the same ID, so the corpus
// never accumulates duplicates.
func DocIDFromSource(sourceKey string) string {
	sum := sha256.Sum256([]byte(sourceKey))
	return hex.EncodeToString(sum[:16])
}

// ChunkIDFromContent derives a stable chunk ID from the parent document ID
// and the chunk's position path within it.
func ChunkIDFromContent(parentDocID, sectionPath string) string {
	sum := sha256.Sum256([]byte(parentDocID + "\x00" + sectionPath))
	return hex.EncodeToString(sum[:16])
}
