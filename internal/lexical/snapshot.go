package lexical

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/clearlaw/lexengine/internal/corpus"
	"github.com/clearlaw/lexengine/internal/errors"
)

// BM25 parameter defaults, matching the offline builder.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Posting is one (chunk, term frequency) pair in a postings list.
// Field names are short because the snapshot blob carries millions of these.
type Posting struct {
	Chunk int `json:"c"` // index into Snapshot.Chunks
	TF    int `json:"f"`
}

// ChunkMeta is the per-chunk metadata stored in the snapshot.
type ChunkMeta struct {
	ID          string         `json:"id"`
	ParentDocID string         `json:"parent_doc_id"`
	DocType     corpus.DocType `json:"doc_type"`
	Title       string         `json:"title,omitempty"`
	Chapter     string         `json:"chapter,omitempty"`
	Section     string         `json:"section,omitempty"`
	SectionPath []string       `json:"section_path,omitempty"`
	Year        int            `json:"year,omitempty"`
	TokenCount  int            `json:"token_count"`
	Text        string         `json:"text,omitempty"` // may be empty pending remote fetch
}

// Snapshot is the immutable, versioned lexical index: postings plus per-chunk
// metadata, built offline and loaded wholesale. It is never mutated at
// request time, so reads need no locking once loaded.
type Snapshot struct {
	Version   string               `json:"version"`
	BuiltAt   time.Time            `json:"built_at"`
	AvgDocLen float64              `json:"avg_doc_len"`
	Postings  map[string][]Posting `json:"postings"`
	Chunks    []ChunkMeta          `json:"chunks"`
}

// ParseSnapshot decodes and validates a snapshot blob.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.New(errors.ErrCodeIndexCorrupt, "decode index snapshot", err)
	}
	if len(s.Chunks) == 0 {
		return nil, errors.New(errors.ErrCodeIndexCorrupt, "index snapshot has no chunks", nil)
	}
	for term, plist := range s.Postings {
		for _, p := range plist {
			if p.Chunk < 0 || p.Chunk >= len(s.Chunks) {
				return nil, errors.New(errors.ErrCodeIndexCorrupt,
					"posting for term "+term+" references chunk out of range", nil)
			}
		}
	}
	if s.AvgDocLen <= 0 {
		s.AvgDocLen = averageDocLen(s.Chunks)
	}
	return &s, nil
}

func averageDocLen(chunks []ChunkMeta) float64 {
	total := 0
	for _, c := range chunks {
		total += c.TokenCount
	}
	if len(chunks) == 0 {
		return 1
	}
	avg := float64(total) / float64(len(chunks))
	if avg <= 0 {
		return 1
	}
	return avg
}

// scored pairs a chunk index with its BM25 score.
type scored struct {
	chunk int
	score float64
}

// Search ranks chunks for the query using BM25 with the given saturation (k1)
// and length normalization (b) parameters. Non-positive scores are dropped;
// at most topK results return, best first.
func (s *Snapshot) Search(query string, topK int, k1, b float64) []scored {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}

	terms := Tokenize(query)
	if len(terms) == 0 || topK <= 0 {
		return nil
	}

	n := float64(len(s.Chunks))
	accum := make(map[int]float64)

	for _, term := range terms {
		plist, ok := s.Postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			dl := float64(s.Chunks[p.Chunk].TokenCount)
			tf := float64(p.TF)
			denom := tf + k1*(1-b+b*dl/s.AvgDocLen)
			accum[p.Chunk] += idf * tf * (k1 + 1) / denom
		}
	}

	results := make([]scored, 0, len(accum))
	for idx, score := range accum {
		if score <= 0 {
			continue
		}
		results = append(results, scored{chunk: idx, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		// Deterministic tie-break for test reproducibility.
		return s.Chunks[results[i].chunk].ID < s.Chunks[results[j].chunk].ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// FindSection returns chunks whose metadata matches the given chapter and
// section number, in snapshot order. Chapter may be empty when the caller
// only knows the section. Serves the section-lookup fast path.
func (s *Snapshot) FindSection(chapter, section string) []ChunkMeta {
	section = strings.ToUpper(section)
	var out []ChunkMeta
	for _, c := range s.Chunks {
		if !strings.EqualFold(c.Section, section) {
			continue
		}
		if chapter != "" && c.Chapter != chapter {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FindChapter returns up to limit chunks belonging to the given chapter,
// in snapshot (document) order. Serves the statute-lookup fast path.
func (s *Snapshot) FindChapter(chapter string, limit int) []ChunkMeta {
	var out []ChunkMeta
	for _, c := range s.Chunks {
		if c.Chapter != chapter {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Chunk materializes the corpus chunk for a snapshot entry.
func (m ChunkMeta) AsChunk() *corpus.Chunk {
	return &corpus.Chunk{
		ID:          m.ID,
		ParentDocID: m.ParentDocID,
		Text:        m.Text,
		SectionPath: m.SectionPath,
		TokenCount:  m.TokenCount,
		DocType:     m.DocType,
		Chapter:     m.Chapter,
		Section:     m.Section,
		Year:        m.Year,
		Metadata:    map[string]string{"title": m.Title},
	}
}
