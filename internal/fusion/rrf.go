// Package fusion combines ranked lists from multiple retrieval providers
// into one list using weighted reciprocal rank fusion.
package fusion

import (
	"sort"
	"strconv"

	"github.com/clearlaw/lexengine/internal/corpus"
)

// DefaultRRFK is the rank smoothing constant. Larger values flatten the
// difference between adjacent ranks.
const DefaultRRFK = 60

// Default provider weights. Dense retrieval gets more weight because it
// generalizes across phrasing; sparse retrieval anchors exact citations.
const (
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
)

// Weights are the per-provider fusion weights.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights returns the standard lexical/vector weighting.
func DefaultWeights() Weights {
	return Weights{Lexical: DefaultLexicalWeight, Vector: DefaultVectorWeight}
}

// Fuser merges provider result lists with reciprocal rank fusion.
type Fuser struct {
	k       int
	weights Weights
}

// NewFuser creates a fuser. Non-positive k falls back to DefaultRRFK; zero
// weights fall back to the defaults.
func NewFuser(k int, weights Weights) *Fuser {
	if k <= 0 {
		k = DefaultRRFK
	}
	if weights.Lexical <= 0 && weights.Vector <= 0 {
		weights = DefaultWeights()
	}
	return &Fuser{k: k, weights: weights}
}

// fuseEntry accumulates one candidate's fused score. order preserves the
// position of first appearance for deterministic tie-breaking.
type fuseEntry struct {
	result *corpus.RetrievalResult
	score  float64
	order  int
}

// Fuse merges the lexical and vector lists. Each candidate's fused score is
// the sum of weight/(k+rank) over the lists it appears in, with rank
// starting at 1; absence from a list contributes nothing. Raw provider
// scores are never compared directly, so no normalization step exists.
// Output is sorted by fused score descending, ties broken by first
// appearance (lexical list first), and each result's confidence is its
// fused score.
func (f *Fuser) Fuse(lexical, vector []*corpus.RetrievalResult) []*corpus.RetrievalResult {
	entries := make(map[string]*fuseEntry, len(lexical)+len(vector))
	next := 0

	accumulate := func(list []*corpus.RetrievalResult, weight float64) {
		for rank, r := range list {
			if r == nil || r.Chunk == nil {
				continue
			}
			contribution := weight / float64(f.k+rank+1)
			e, ok := entries[r.Chunk.ID]
			if !ok {
				e = &fuseEntry{result: r, order: next}
				next++
				entries[r.Chunk.ID] = e
			} else {
				// Keep provenance from both providers on the surviving result.
				mergeProvenance(e.result, r)
			}
			e.score += contribution
		}
	}

	accumulate(lexical, f.weights.Lexical)
	accumulate(vector, f.weights.Vector)

	fused := make([]*fuseEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	out := make([]*corpus.RetrievalResult, len(fused))
	for i, e := range fused {
		e.result.SetConfidence(e.score)
		e.result.SetProv(corpus.ProvFusedScore, strconv.FormatFloat(e.score, 'f', 6, 64))
		e.result.SetProv(corpus.ProvSource, "fused")
		out[i] = e.result
	}
	return out
}

// mergeProvenance copies provider-specific provenance from a duplicate hit
// onto the candidate that will survive fusion.
func mergeProvenance(dst, src *corpus.RetrievalResult) {
	for _, key := range []string{corpus.ProvLexicalScore, corpus.ProvVectorScore, corpus.ProvVariant} {
		if v := src.Prov(key); v != "" && dst.Prov(key) == "" {
			dst.SetProv(key, v)
		}
	}
}

// MergeVariants collapses per-variant result lists from one provider into a
// single list. A chunk hit by several variants keeps its best rank; ties
// keep the earlier variant's hit. The variant index that contributed each
// surviving result is recorded in provenance.
func MergeVariants(lists [][]*corpus.RetrievalResult) []*corpus.RetrievalResult {
	type merged struct {
		result   *corpus.RetrievalResult
		bestRank int
		order    int
	}

	seen := make(map[string]*merged)
	next := 0

	for variant, list := range lists {
		for rank, r := range list {
			if r == nil || r.Chunk == nil {
				continue
			}
			m, ok := seen[r.Chunk.ID]
			if !ok {
				r.SetProv(corpus.ProvVariant, strconv.Itoa(variant))
				seen[r.Chunk.ID] = &merged{result: r, bestRank: rank, order: next}
				next++
				continue
			}
			if rank < m.bestRank {
				m.bestRank = rank
				m.result = r
				r.SetProv(corpus.ProvVariant, strconv.Itoa(variant))
			}
		}
	}

	all := make([]*merged, 0, len(seen))
	for _, m := range seen {
		all = append(all, m)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].bestRank != all[j].bestRank {
			return all[i].bestRank < all[j].bestRank
		}
		return all[i].order < all[j].order
	})

	out := make([]*corpus.RetrievalResult, len(all))
	for i, m := range all {
		out[i] = m.result
	}
	return out
}
