package search

import (
	"math"
	"sort"
)

// CosineSimilarity は2つのベクトルのコサイン類似度を返す
// 次元が異なる場合やゼロベクトルの場合は0を返す
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortMatches はスコア降順、同点ならID昇順に並べる
func SortMatches(matches []*Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}

// SelectMMR は候補からMaximal Marginal Relevanceでk件を選ぶ
//
// 各ステップで lambda*sim(query, d) - (1-lambda)*max sim(d, selected) が最大の候補を選択する。
// 選択結果は関連度スコアの降順で返す。
func SelectMMR(query []float32, candidates []Candidate, k int, lambda float64) []*Match {
	if k <= 0 || len(candidates) == 0 {
		return []*Match{}
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = CosineSimilarity(query, c.Embedding)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for n, j := range selected {
				if sim := CosineSimilarity(c.Embedding, candidates[j].Embedding); n == 0 || sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		used[best] = true
		selected = append(selected, best)
	}

	matches := make([]*Match, 0, len(selected))
	for _, i := range selected {
		matches = append(matches, candidates[i].Match)
	}
	SortMatches(matches)
	return matches
}
