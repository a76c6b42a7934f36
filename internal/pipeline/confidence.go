package pipeline

import "github.com/clearlaw/lexengine/internal/corpus"

// Top-result weights for the overall confidence score. The best hit
// dominates; later hits matter progressively less.
var confidenceWeights = [3]float64{0.5, 0.3, 0.2}

// degradedPenalty scales confidence down when any stage ran on a fallback
// path, so the synthesis layer hedges its answer accordingly.
const degradedPenalty = 0.9

// scoreConfidence aggregates per-result confidences into one score for the
// whole result set: a weighted mean of the top three results, penalized
// when retrieval was degraded. An empty set scores zero.
func scoreConfidence(results []*corpus.RetrievalResult, degraded bool) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum, weightSum float64
	for i, w := range confidenceWeights {
		if i >= len(results) {
			break
		}
		sum += w * results[i].Confidence
		weightSum += w
	}
	score := sum / weightSum

	if degraded {
		score *= degradedPenalty
	}
	if score > 1 {
		score = 1
	}
	return score
}
