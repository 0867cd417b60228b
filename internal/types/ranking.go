package types

// Stage identifies which pipeline stage produced a score.
type Stage string

const (
	// StageBM25 marks lexical scores.
	StageBM25 Stage = "bm25"
	// StageLLM marks scores assigned by the LLM oracle.
	StageLLM Stage = "llm"
)

// ScoredCandidate is one entry of a ranking.
type ScoredCandidate struct {
	ID     string  `json:"candidate_id"`
	Score  float64 `json:"score"`
	Source Stage   `json:"source"`
}

// RankingResult is an ordered ranking (score desc, ID asc on ties) plus the stage that produced it.
type RankingResult struct {
	Stage      Stage             `json:"stage"`
	Candidates []ScoredCandidate `json:"candidates"`
}

// IDs returns the candidate IDs in ranked order.
func (r *RankingResult) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// Len returns the number of ranked candidates.
func (r *RankingResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Candidates)
}

// Clone returns a copy whose candidate slice can be modified independently.
func (r *RankingResult) Clone() *RankingResult {
	if r == nil {
		return nil
	}
	return &RankingResult{
		Stage:      r.Stage,
		Candidates: append([]ScoredCandidate(nil), r.Candidates...),
	}
}
