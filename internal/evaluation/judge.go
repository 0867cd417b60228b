package evaluation

import (
	"context"

	"github.com/jonathan/resume-ranker/internal/rerank"
	"github.com/jonathan/resume-ranker/internal/types"
)

// JudgeReference builds a graded reference by letting a (usually stronger) judge reranker
// score the first k candidates of base. Candidates the judge fails to score are left out
// of the reference and show up as unjudged during evaluation.
func JudgeReference(ctx context.Context, judge *rerank.Reranker, query string, base *types.RankingResult, docs rerank.DocumentSource, k int) (*types.Reference, error) {
	if base.Len() == 0 {
		return nil, &types.EvaluationInputError{Message: "nothing to judge: ranking is empty"}
	}

	judged, report := judge.Rerank(ctx, query, base, docs, k)
	if report.Cancelled {
		return nil, ctx.Err()
	}

	ref := &types.Reference{Format: types.ReferenceGraded, Grades: make(map[string]float64)}
	for _, c := range judged.Candidates {
		if c.Source == types.StageLLM {
			ref.Grades[c.ID] = c.Score
		}
	}
	if len(ref.Grades) == 0 {
		return nil, &types.EvaluationInputError{Message: "judge produced no grades"}
	}
	return ref, nil
}
