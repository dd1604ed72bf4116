package retrieval

import (
	"github.com/ragroute/ragroute/schema"
	"github.com/ragroute/ragroute/vectordb"
)

const minDiversityPool = 20

// diversityPool is the candidate over-fetch size for MMR re-ranking.
func diversityPool(topK int) int {
	if pool := 4 * topK; pool > minDiversityPool {
		return pool
	}
	return minDiversityPool
}

// mmrSelect greedily picks topK candidates by maximal marginal relevance:
// each step takes the candidate maximizing
//
//	(1-lambda)*relevance - lambda*maxSimToSelected
//
// so lambda 0 is pure relevance order and lambda 1 pure diversity.
// Candidates need vectors for the pairwise similarity term.
func mmrSelect(hits []schema.ScoredPoint, topK int, lambda float64) []schema.ScoredPoint {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	if topK <= 0 || len(hits) == 0 {
		return nil
	}
	if topK > len(hits) {
		topK = len(hits)
	}

	selected := make([]schema.ScoredPoint, 0, topK)
	remaining := make([]schema.ScoredPoint, len(hits))
	copy(remaining, hits)

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, lambda)
		for i := 1; i < len(remaining); i++ {
			if s := mmrScore(remaining[i], selected, lambda); s > bestScore {
				bestIdx, bestScore = i, s
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(candidate schema.ScoredPoint, selected []schema.ScoredPoint, lambda float64) float64 {
	maxSim := 0.0
	for _, s := range selected {
		if sim := vectordb.Cosine(candidate.Vector, s.Vector); sim > maxSim {
			maxSim = sim
		}
	}
	return (1-lambda)*candidate.Score - lambda*maxSim
}
