// Package evaluation measures how well a ranking agrees with a reference ranking.
package evaluation

import (
	"fmt"
	"math"

	"github.com/jonathan/resume-ranker/internal/types"
)

// Defaults for evaluation options.
const (
	DefaultCutoffK            = 10
	DefaultRelevanceThreshold = 50.0
)

// Options configures the evaluator.
type Options struct {
	// CutoffK is the rank cutoff for precision, NDCG and MAP.
	CutoffK int
	// RelevanceThreshold is the minimum grade counted as relevant for graded references.
	RelevanceThreshold float64
}

// DefaultOptions returns the default evaluation options.
func DefaultOptions() Options {
	return Options{CutoffK: DefaultCutoffK, RelevanceThreshold: DefaultRelevanceThreshold}
}

// Evaluator computes ranking-quality metrics. It holds no state besides its options.
type Evaluator struct {
	opts Options
}

// New creates an Evaluator. A non-positive cutoff falls back to the default.
func New(opts Options) *Evaluator {
	if opts.CutoffK <= 0 {
		opts.CutoffK = DefaultCutoffK
	}
	return &Evaluator{opts: opts}
}

// Evaluate evaluates result against ref with the default options.
func Evaluate(result *types.RankingResult, ref *types.Reference) (*types.EvaluationReport, error) {
	return New(DefaultOptions()).Evaluate(result, ref)
}

// judgement is the normalized view of a reference.
type judgement struct {
	// quality orders candidates: higher is better
	quality  map[string]float64
	gain     map[string]float64
	relevant map[string]bool
}

// Evaluate compares result with ref.
//
// An empty reference is an *types.EvaluationInputError and the report is marked not evaluable.
// A reference sharing no candidates with result yields a not-evaluable report without error.
// Candidates of result missing from ref are counted as unjudged and excluded from the rank
// correlations.
func (e *Evaluator) Evaluate(result *types.RankingResult, ref *types.Reference) (*types.EvaluationReport, error) {
	report := &types.EvaluationReport{
		CutoffK: e.opts.CutoffK,
		Metrics: map[string]float64{},
	}
	if ref != nil {
		report.Format = ref.Format
	}

	if ref == nil || ref.Size() == 0 {
		report.Reason = "reference is empty"
		report.Unjudged = result.Len()
		report.UnjudgedIDs = result.IDs()
		return report, &types.EvaluationInputError{Message: report.Reason}
	}

	j, err := e.judge(ref)
	if err != nil {
		report.Reason = err.Error()
		return report, err
	}

	ranked := result.IDs()
	var judged []string
	for _, id := range ranked {
		if _, ok := j.quality[id]; ok {
			judged = append(judged, id)
		} else {
			report.UnjudgedIDs = append(report.UnjudgedIDs, id)
		}
	}
	report.Judged = len(judged)
	report.Unjudged = len(report.UnjudgedIDs)

	if len(judged) == 0 {
		report.Reason = "reference shares no candidates with the ranking"
		return report, nil
	}
	report.Evaluable = true

	// paired samples over judged candidates: position in result vs reference quality
	position := positions(result, ref.Format == types.ReferenceGraded)
	x := make([]float64, len(judged))
	y := make([]float64, len(judged))
	for i, id := range judged {
		x[i] = -position[id]
		y[i] = j.quality[id]
	}
	if v, ok := Spearman(x, y); ok {
		report.Metrics[types.MetricSpearman] = v
	}
	if v, ok := KendallTau(x, y); ok {
		report.Metrics[types.MetricKendallTau] = v
	}

	// the ideal ordering only contains candidates the ranking could have placed
	gains := make(map[string]float64, len(judged))
	relevant := make(map[string]bool)
	for _, id := range judged {
		gains[id] = j.gain[id]
		if j.relevant[id] {
			relevant[id] = true
		}
	}

	k := e.opts.CutoffK
	report.Metrics[types.MetricPrecisionK] = PrecisionAtK(ranked, relevant, k)
	report.Metrics[types.MetricMAPK] = AveragePrecisionAtK(ranked, relevant, k)
	report.Metrics[types.MetricMRR] = ReciprocalRank(ranked, relevant)
	if v, ok := NDCGAtK(ranked, gains, k); ok {
		report.Metrics[types.MetricNDCGK] = v
	}
	return report, nil
}

// positions maps each candidate of result to its position. With tiesByScore, adjacent
// candidates with equal scores share a position, matching the ties a graded reference can
// express. Order references are strict, so positions stay distinct.
func positions(result *types.RankingResult, tiesByScore bool) map[string]float64 {
	out := make(map[string]float64, len(result.Candidates))
	pos := 0
	for i, c := range result.Candidates {
		if i > 0 && !(tiesByScore && c.Score == result.Candidates[i-1].Score) {
			pos++
		}
		out[c.ID] = float64(pos)
	}
	return out
}

func (e *Evaluator) judge(ref *types.Reference) (*judgement, error) {
	j := &judgement{
		quality:  make(map[string]float64),
		gain:     make(map[string]float64),
		relevant: make(map[string]bool),
	}

	switch ref.Format {
	case types.ReferenceOrder, "":
		// duplicate IDs keep their first position
		var order []string
		seen := make(map[string]bool, len(ref.Order))
		for _, id := range ref.Order {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			order = append(order, id)
		}
		n := len(order)
		for i, id := range order {
			j.quality[id] = -float64(i)
			j.gain[id] = float64(n - i)
			j.relevant[id] = i < e.opts.CutoffK
		}
	case types.ReferenceGraded:
		for id, grade := range ref.Grades {
			if math.IsNaN(grade) || math.IsInf(grade, 0) {
				return nil, &types.EvaluationInputError{Message: fmt.Sprintf("grade for %q is not finite", id)}
			}
			j.quality[id] = grade
			j.gain[id] = math.Max(grade, 0)
			j.relevant[id] = grade >= e.opts.RelevanceThreshold
		}
	default:
		return nil, &types.EvaluationInputError{Message: fmt.Sprintf("unknown reference format %q", ref.Format)}
	}

	if len(j.quality) == 0 {
		return nil, &types.EvaluationInputError{Message: "reference is empty"}
	}
	return j, nil
}
