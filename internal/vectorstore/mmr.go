package vectorstore

import "math"

// CosineSimilarity 计算两个向量的余弦相似度，任一向量为零向量或维度不一致时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// selectMMR 从候选中贪心选出 k 个下标：
// 每一轮取 lambda*sim(query, c) - (1-lambda)*max sim(c, selected) 最大者，
// 分数相同时保留靠前（更相关）的候选。
func selectMMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = CosineSimilarity(query, c)
	}

	// maxSim[i] 记录候选 i 与已选集合的最大相似度
	maxSim := make([]float64, len(candidates))
	used := make([]bool, len(candidates))
	selected := make([]int, 0, k)

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := lambda * relevance[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if used[i] {
				continue
			}
			if sim := CosineSimilarity(candidates[best], candidates[i]); len(selected) == 1 || sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return selected
}
