package types

import (
	"fmt"
	"strings"
)

// ReferenceFormat selects how a reference ranking is interpreted.
type ReferenceFormat string

const (
	// ReferenceOrder is an explicit ground-truth ordering of candidate IDs (total or partial).
	ReferenceOrder ReferenceFormat = "order"
	// ReferenceGraded maps candidate IDs to relevance grades.
	ReferenceGraded ReferenceFormat = "graded"
)

// ParseReferenceFormat parses a configuration value.
func ParseReferenceFormat(s string) (ReferenceFormat, error) {
	switch ReferenceFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ReferenceOrder:
		return ReferenceOrder, nil
	case ReferenceGraded:
		return ReferenceGraded, nil
	default:
		return "", fmt.Errorf("unknown reference format %q (want %q or %q)", s, ReferenceOrder, ReferenceGraded)
	}
}

// Reference is the ground truth a ranking is evaluated against.
type Reference struct {
	Format ReferenceFormat    `json:"format"`
	Order  []string           `json:"order,omitempty"`
	Grades map[string]float64 `json:"grades,omitempty"`
}

// Size returns the number of judged candidates in the reference.
func (r *Reference) Size() int {
	if r == nil {
		return 0
	}
	if r.Format == ReferenceGraded {
		return len(r.Grades)
	}
	return len(r.Order)
}

// ReferenceFromRanking builds an order reference that matches a ranking exactly.
func ReferenceFromRanking(r *RankingResult) *Reference {
	return &Reference{Format: ReferenceOrder, Order: r.IDs()}
}

// Metric names reported by the evaluator.
const (
	MetricSpearman   = "spearman"
	MetricKendallTau = "kendall_tau"
	MetricPrecisionK = "precision_at_k"
	MetricNDCGK      = "ndcg_at_k"
	MetricMAPK       = "map_at_k"
	MetricMRR        = "mrr"
)

// EvaluationReport holds ranking-quality metrics for one ranking against one reference.
type EvaluationReport struct {
	Evaluable   bool               `json:"evaluable"`
	Reason      string             `json:"reason,omitempty"`
	Format      ReferenceFormat    `json:"reference_format"`
	CutoffK     int                `json:"cutoff_k"`
	Metrics     map[string]float64 `json:"metrics"`
	Judged      int                `json:"judged"`
	Unjudged    int                `json:"unjudged"`
	UnjudgedIDs []string           `json:"unjudged_ids,omitempty"`
}

// Metric returns a named metric and whether it was computed.
func (r *EvaluationReport) Metric(name string) (float64, bool) {
	if r == nil || r.Metrics == nil {
		return 0, false
	}
	v, ok := r.Metrics[name]
	return v, ok
}
