package evaluation

import (
	"math"
	"sort"
)

// PrecisionAtK is the share of the first k ranked IDs that are relevant.
// The denominator is k capped at the ranking length.
func PrecisionAtK(ranked []string, relevant map[string]bool, k int) float64 {
	if len(ranked) == 0 || k <= 0 {
		return 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	hits := 0
	for _, id := range ranked[:k] {
		if relevant[id] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// AveragePrecisionAtK averages precision at every relevant hit in the first k ranked IDs,
// normalized by min(|relevant|, k). Returns 0 when nothing is relevant.
func AveragePrecisionAtK(ranked []string, relevant map[string]bool, k int) float64 {
	if len(ranked) == 0 || k <= 0 || len(relevant) == 0 {
		return 0
	}
	limit := k
	if limit > len(ranked) {
		limit = len(ranked)
	}
	sum := 0.0
	hits := 0
	for i, id := range ranked[:limit] {
		if relevant[id] {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	denom := len(relevant)
	if denom > k {
		denom = k
	}
	return sum / float64(denom)
}

// NDCGAtK computes normalized discounted cumulative gain over the first k ranked IDs.
// The ideal ordering is built from the gains of every ID in gains. ok is false when the
// ideal DCG is zero.
func NDCGAtK(ranked []string, gains map[string]float64, k int) (float64, bool) {
	if len(ranked) == 0 || k <= 0 {
		return 0, false
	}
	limit := k
	if limit > len(ranked) {
		limit = len(ranked)
	}

	dcg := 0.0
	for i, id := range ranked[:limit] {
		dcg += gains[id] / math.Log2(float64(i+2))
	}

	ideal := make([]float64, 0, len(gains))
	for _, g := range gains {
		ideal = append(ideal, g)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	if len(ideal) > limit {
		ideal = ideal[:limit]
	}
	idcg := 0.0
	for i, g := range ideal {
		idcg += g / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0, false
	}
	return dcg / idcg, true
}

// ReciprocalRank is 1/position of the first relevant ID (1-indexed), or 0 if none is relevant.
func ReciprocalRank(ranked []string, relevant map[string]bool) float64 {
	for i, id := range ranked {
		if relevant[id] {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// fractionalRanks assigns 1-based ranks to values in descending order, averaging ties.
func fractionalRanks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })

	ranks := make([]float64, len(values))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for _, i := range idx[start:end] {
			ranks[i] = avg
		}
		start = end
	}
	return ranks
}

// Spearman is the rank correlation of two paired samples (Pearson over tie-averaged ranks).
// ok is false for fewer than two pairs or when either side has no variance.
func Spearman(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	rx, ry := fractionalRanks(x), fractionalRanks(y)

	n := float64(len(rx))
	var mx, my float64
	for i := range rx {
		mx += rx[i]
		my += ry[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range rx {
		dx, dy := rx[i]-mx, ry[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	return clampUnit(cov / math.Sqrt(vx*vy)), true
}

// KendallTau is Kendall's tau-b of two paired samples.
// ok is false for fewer than two pairs or when either side is constant.
func KendallTau(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	var concordant, discordant, tiesX, tiesY float64
	for i := 0; i < len(x); i++ {
		for j := i + 1; j < len(x); j++ {
			dx := sign(x[i] - x[j])
			dy := sign(y[i] - y[j])
			switch {
			case dx == 0 && dy == 0:
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case dx == dy:
				concordant++
			default:
				discordant++
			}
		}
	}
	denom := math.Sqrt((concordant + discordant + tiesX) * (concordant + discordant + tiesY))
	if denom == 0 {
		return 0, false
	}
	return clampUnit((concordant - discordant) / denom), true
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
