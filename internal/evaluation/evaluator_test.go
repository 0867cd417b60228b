package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/jonathan/resume-ranker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankingOf(ids ...string) *types.RankingResult {
	r := &types.RankingResult{Stage: types.StageBM25}
	for i, id := range ids {
		r.Candidates = append(r.Candidates, types.ScoredCandidate{ID: id, Score: float64(len(ids) - i), Source: types.StageBM25})
	}
	return r
}

func allMetrics() []string {
	return []string{
		types.MetricSpearman,
		types.MetricKendallTau,
		types.MetricPrecisionK,
		types.MetricNDCGK,
		types.MetricMAPK,
		types.MetricMRR,
	}
}

func TestEvaluate_PerfectAgreement(t *testing.T) {
	for _, n := range []int{2, 3, 10, 25} {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("cand-%02d", i)
		}
		result := rankingOf(ids...)

		report, err := Evaluate(result, types.ReferenceFromRanking(result))
		require.NoError(t, err)
		assert.True(t, report.Evaluable)
		assert.Equal(t, n, report.Judged)
		assert.Equal(t, 0, report.Unjudged)

		for _, name := range allMetrics() {
			v, ok := report.Metric(name)
			require.True(t, ok, "metric %s missing for n=%d", name, n)
			assert.InDelta(t, 1.0, v, 1e-9, "metric %s for n=%d", name, n)
		}
	}
}

func TestEvaluate_ReversedOrder(t *testing.T) {
	result := rankingOf("a", "b", "c", "d")
	ref := &types.Reference{Format: types.ReferenceOrder, Order: []string{"d", "c", "b", "a"}}

	report, err := New(Options{CutoffK: 2}).Evaluate(result, ref)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, report.Metrics[types.MetricSpearman], 1e-9)
	assert.InDelta(t, -1.0, report.Metrics[types.MetricKendallTau], 1e-9)
	// relevant = reference top 2 = {d, c}; result top 2 = {a, b}
	assert.Equal(t, 0.0, report.Metrics[types.MetricPrecisionK])
	assert.Equal(t, 0.0, report.Metrics[types.MetricMAPK])
	assert.InDelta(t, 1.0/3, report.Metrics[types.MetricMRR], 1e-9)
	assert.Less(t, report.Metrics[types.MetricNDCGK], 1.0)
}

func TestEvaluate_DisjointReference(t *testing.T) {
	result := rankingOf("a", "b", "c")
	ref := &types.Reference{Format: types.ReferenceOrder, Order: []string{"x", "y"}}

	report, err := Evaluate(result, ref)
	require.NoError(t, err)
	assert.False(t, report.Evaluable)
	assert.Equal(t, 3, report.Unjudged)
	assert.Equal(t, []string{"a", "b", "c"}, report.UnjudgedIDs)
	assert.Equal(t, 0, report.Judged)
	assert.NotEmpty(t, report.Reason)
	assert.Empty(t, report.Metrics)
}

func TestEvaluate_EmptyReference(t *testing.T) {
	result := rankingOf("a", "b")
	for _, ref := range []*types.Reference{
		nil,
		{Format: types.ReferenceOrder},
		{Format: types.ReferenceGraded, Grades: map[string]float64{}},
		{Format: types.ReferenceOrder, Order: []string{""}},
	} {
		report, err := Evaluate(result, ref)
		require.Error(t, err)
		assert.True(t, types.IsEvaluationInputError(err))
		require.NotNil(t, report)
		assert.False(t, report.Evaluable)
	}
}

func TestEvaluate_UnknownFormat(t *testing.T) {
	_, err := Evaluate(rankingOf("a"), &types.Reference{Format: "stars", Order: []string{"a"}})
	assert.True(t, types.IsEvaluationInputError(err))
}

func TestEvaluate_NonFiniteGrade(t *testing.T) {
	ref := &types.Reference{Format: types.ReferenceGraded, Grades: map[string]float64{"a": math.Inf(1)}}
	_, err := Evaluate(rankingOf("a", "b"), ref)
	assert.True(t, types.IsEvaluationInputError(err))
}

func TestEvaluate_PartialOverlapCountsUnjudged(t *testing.T) {
	result := rankingOf("a", "b", "c", "d")
	ref := &types.Reference{Format: types.ReferenceOrder, Order: []string{"a", "c", "z"}}

	report, err := Evaluate(result, ref)
	require.NoError(t, err)
	assert.True(t, report.Evaluable)
	assert.Equal(t, 2, report.Judged)
	assert.Equal(t, 2, report.Unjudged)
	assert.Equal(t, []string{"b", "d"}, report.UnjudgedIDs)
	// a before c in both
	assert.InDelta(t, 1.0, report.Metrics[types.MetricKendallTau], 1e-9)
}

func TestEvaluate_SingleJudgedCandidateOmitsCorrelations(t *testing.T) {
	report, err := Evaluate(rankingOf("a", "b"), &types.Reference{Format: types.ReferenceOrder, Order: []string{"a"}})
	require.NoError(t, err)
	_, ok := report.Metric(types.MetricSpearman)
	assert.False(t, ok)
	_, ok = report.Metric(types.MetricKendallTau)
	assert.False(t, ok)
	assert.Equal(t, 1.0, report.Metrics[types.MetricMRR])
}

func TestEvaluate_Graded(t *testing.T) {
	result := rankingOf("a", "b", "c", "d")
	ref := &types.Reference{
		Format: types.ReferenceGraded,
		Grades: map[string]float64{"a": 90, "b": 30, "c": 70, "d": 10},
	}

	report, err := New(Options{CutoffK: 2, RelevanceThreshold: 50}).Evaluate(result, ref)
	require.NoError(t, err)
	assert.Equal(t, types.ReferenceGraded, report.Format)
	assert.Equal(t, 2, report.CutoffK)

	// relevant = {a, c}; top 2 = {a, b}
	assert.Equal(t, 0.5, report.Metrics[types.MetricPrecisionK])
	// AP@2 = (1/1) / min(2, 2)
	assert.Equal(t, 0.5, report.Metrics[types.MetricMAPK])
	assert.Equal(t, 1.0, report.Metrics[types.MetricMRR])
	assert.InDelta(t, 0.8, report.Metrics[types.MetricSpearman], 1e-9)
	assert.InDelta(t, 2.0/3, report.Metrics[types.MetricKendallTau], 1e-9)

	ndcg := report.Metrics[types.MetricNDCGK]
	want := (90 + 30/math.Log2(3)) / (90 + 70/math.Log2(3))
	assert.InDelta(t, want, ndcg, 1e-9)
}

func TestEvaluate_GradedTiedScoresAgreeWithOwnGrades(t *testing.T) {
	result := &types.RankingResult{Stage: types.StageBM25, Candidates: []types.ScoredCandidate{
		{ID: "a", Score: 2}, {ID: "b", Score: 1}, {ID: "c", Score: 1},
	}}
	ref := &types.Reference{Format: types.ReferenceGraded, Grades: map[string]float64{"a": 2, "b": 1, "c": 1}}

	report, err := Evaluate(result, ref)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.Metrics[types.MetricSpearman], 1e-9)
	assert.InDelta(t, 1.0, report.Metrics[types.MetricKendallTau], 1e-9)

	// an order reference is strict, so the same ranking still agrees with itself
	report, err = Evaluate(result, types.ReferenceFromRanking(result))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.Metrics[types.MetricSpearman], 1e-9)
	assert.InDelta(t, 1.0, report.Metrics[types.MetricKendallTau], 1e-9)
}

func TestPositions(t *testing.T) {
	result := &types.RankingResult{Candidates: []types.ScoredCandidate{
		{ID: "a", Score: 3}, {ID: "b", Score: 3}, {ID: "c", Score: 1}, {ID: "d", Score: 3},
	}}
	assert.Equal(t, map[string]float64{"a": 0, "b": 0, "c": 1, "d": 2}, positions(result, true))
	assert.Equal(t, map[string]float64{"a": 0, "b": 1, "c": 2, "d": 3}, positions(result, false))
}

func TestEvaluate_GradedAllEqualOmitsCorrelations(t *testing.T) {
	ref := &types.Reference{Format: types.ReferenceGraded, Grades: map[string]float64{"a": 60, "b": 60}}
	report, err := Evaluate(rankingOf("a", "b"), ref)
	require.NoError(t, err)
	_, ok := report.Metric(types.MetricSpearman)
	assert.False(t, ok)
	assert.Equal(t, 1.0, report.Metrics[types.MetricPrecisionK])
}

func TestEvaluate_DuplicateReferenceIDsKeepFirst(t *testing.T) {
	result := rankingOf("a", "b")
	ref := &types.Reference{Format: types.ReferenceOrder, Order: []string{"a", "b", "a"}}
	report, err := Evaluate(result, ref)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, report.Metrics[types.MetricSpearman], 1e-9)
}

func TestEvaluate_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := make([]string, 40)
	grades := make(map[string]float64)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%02d", i)
		grades[ids[i]] = float64(rng.Intn(101))
	}
	result := rankingOf(ids...)
	ref := &types.Reference{Format: types.ReferenceGraded, Grades: grades}

	first, err := Evaluate(result, ref)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Evaluate(result, ref)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluate_MetricsWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rng.Intn(30)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("c%02d", i)
		}
		order := append([]string(nil), ids...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		report, err := Evaluate(rankingOf(ids...), &types.Reference{Format: types.ReferenceOrder, Order: order})
		require.NoError(t, err)
		for name, v := range report.Metrics {
			lo := 0.0
			if name == types.MetricSpearman || name == types.MetricKendallTau {
				lo = -1
			}
			assert.GreaterOrEqual(t, v, lo, name)
			assert.LessOrEqual(t, v, 1.0+1e-9, name)
		}
	}
}
