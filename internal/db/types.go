package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-ranker/internal/types"
)

// Run represents a stored ranking run
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Query        string     `json:"query"`
	QueryHash    string     `json:"query_hash"`
	State        string     `json:"state"`
	StageReached string     `json:"stage_reached"`
	Degraded     bool       `json:"degraded"`
	Candidates   int        `json:"candidates"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Ranking kinds stored per run.
const (
	RankingBM25  = "bm25"
	RankingFinal = "final"
)

// Artifact steps stored per run.
const (
	StepRerankReport = "rerank_report"
	StepEvaluation   = "evaluation"
	StepDurations    = "durations"
	StepReference    = "reference"
)

// RunRecord is everything persisted about one finished run.
type RunRecord struct {
	ID           uuid.UUID
	Query        string
	QueryHash    string
	State        string
	StageReached string
	Degraded     bool
	BM25         *types.RankingResult
	Final        *types.RankingResult
	Reference    *types.Reference
	Evaluation   *types.EvaluationReport
	// RerankReport and Durations are stored as JSON as given.
	RerankReport any
	Durations    map[string]time.Duration
}

// artifacts marshals the optional JSON parts of the record, keyed by step.
func (r *RunRecord) artifacts() (map[string][]byte, error) {
	parts := map[string]any{}
	if r.RerankReport != nil {
		parts[StepRerankReport] = r.RerankReport
	}
	if r.Evaluation != nil {
		parts[StepEvaluation] = r.Evaluation
	}
	if r.Reference != nil {
		parts[StepReference] = r.Reference
	}
	if len(r.Durations) > 0 {
		ms := make(map[string]int64, len(r.Durations))
		for stage, d := range r.Durations {
			ms[stage] = d.Milliseconds()
		}
		parts[StepDurations] = ms
	}

	out := make(map[string][]byte, len(parts))
	for step, v := range parts {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifact %s: %w", step, err)
		}
		out[step] = b
	}
	return out, nil
}

// candidateRows converts a ranking into COPY rows.
func candidateRows(runID uuid.UUID, kind string, r *types.RankingResult) [][]any {
	if r == nil {
		return nil
	}
	rows := make([][]any, len(r.Candidates))
	for i, c := range r.Candidates {
		rows[i] = []any{runID, kind, i + 1, c.ID, c.Score, string(c.Source)}
	}
	return rows
}
