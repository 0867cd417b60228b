package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/resume-ranker/internal/llm"
	"github.com/jonathan/resume-ranker/internal/prompts"
	"go.uber.org/zap"
)

// Score bounds of the LLM scale.
const (
	MinLLMScore = 0.0
	MaxLLMScore = 100.0
)

// Criterion is one rubric dimension with descriptions of each score band.
type Criterion struct {
	Name       string `json:"name"`
	Importance string `json:"importance"`
	Score80100 string `json:"score_80_100"`
	Score6079  string `json:"score_60_79"`
	Score4059  string `json:"score_40_59"`
	Score2039  string `json:"score_20_39"`
	Score019   string `json:"score_0_19"`
}

// Rubric is the per-query evaluation rubric generated before scoring.
type Rubric struct {
	Criteria []Criterion `json:"criteria"`
}

// Text renders the rubric for inclusion in scoring prompts.
func (r *Rubric) Text() string {
	if r == nil || len(r.Criteria) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("EVALUATION CRITERIA:\n\n")
	for _, c := range r.Criteria {
		fmt.Fprintf(&sb, "Criterion: %s (Importance: %s)\n", c.Name, c.Importance)
		fmt.Fprintf(&sb, "- Excellent (80-100): %s\n", c.Score80100)
		fmt.Fprintf(&sb, "- Good (60-79): %s\n", c.Score6079)
		fmt.Fprintf(&sb, "- Average (40-59): %s\n", c.Score4059)
		fmt.Fprintf(&sb, "- Below Average (20-39): %s\n", c.Score2039)
		fmt.Fprintf(&sb, "- Poor (0-19): %s\n\n", c.Score019)
	}
	return sb.String()
}

// candidateScore is one entry of the scoring response.
type candidateScore struct {
	CandidateID string   `json:"candidate_id"`
	Score       *float64 `json:"score"`
	Reason      string   `json:"reason"`
}

type scoreResponse struct {
	Scores []candidateScore `json:"scores"`
	// Score is accepted for single-candidate requests answered without the scores array.
	Score *float64 `json:"score"`
}

// LLMOracle scores candidates with an LLM on a 0-100 scale.
type LLMOracle struct {
	client    llm.Client
	tier      llm.ModelTier
	useRubric bool
	rubric    *Rubric
	logger    *zap.Logger
}

// LLMOracleOption configures an LLMOracle.
type LLMOracleOption func(*LLMOracle)

// WithTier selects the model tier used for scoring.
func WithTier(tier llm.ModelTier) LLMOracleOption {
	return func(o *LLMOracle) { o.tier = tier }
}

// WithoutRubric disables rubric generation in Prepare.
func WithoutRubric() LLMOracleOption {
	return func(o *LLMOracle) { o.useRubric = false }
}

// WithOracleLogger sets the logger.
func WithOracleLogger(l *zap.Logger) LLMOracleOption {
	return func(o *LLMOracle) { o.logger = l }
}

// NewLLMOracle creates an oracle backed by client.
func NewLLMOracle(client llm.Client, opts ...LLMOracleOption) *LLMOracle {
	o := &LLMOracle{
		client:    client,
		tier:      llm.TierLite,
		useRubric: true,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Rubric returns the rubric the oracle scores with, if any.
func (o *LLMOracle) Rubric() *Rubric {
	return o.rubric
}

// Prepare generates a rubric for query and returns an oracle that embeds it in every prompt.
func (o *LLMOracle) Prepare(ctx context.Context, query string) (Oracle, error) {
	if !o.useRubric {
		return o, nil
	}
	rubric, err := o.generateRubric(ctx, query)
	if err != nil {
		return nil, err
	}
	scoped := *o
	scoped.rubric = rubric
	o.logger.Debug("rubric generated", zap.Int("criteria", len(rubric.Criteria)))
	return &scoped, nil
}

func (o *LLMOracle) generateRubric(ctx context.Context, query string) (*Rubric, error) {
	template := prompts.MustGet(prompts.RankingFile, prompts.KeyGenerateRubric)
	prompt := prompts.Format(template, map[string]string{"JobDescription": query})

	// runs once per query
	jsonResp, err := o.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("rubric generation failed: %w", err)
	}

	var rubric Rubric
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(jsonResp)), &rubric); err != nil {
		return nil, fmt.Errorf("failed to parse rubric: %w", err)
	}
	if len(rubric.Criteria) == 0 {
		return nil, fmt.Errorf("rubric has no criteria")
	}
	return &rubric, nil
}

// Score asks the LLM for a 0-100 score per candidate. Scores outside the scale are clamped;
// candidates missing from the response are omitted from the result.
func (o *LLMOracle) Score(ctx context.Context, req Request) (map[string]float64, error) {
	if len(req.Candidates) == 0 {
		return map[string]float64{}, nil
	}

	jsonResp, err := o.client.GenerateJSON(ctx, o.buildScorePrompt(req), o.tier)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	jsonResp = llm.CleanJSONBlock(jsonResp)

	var resp scoreResponse
	if err := json.Unmarshal([]byte(jsonResp), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w (content: %s)", err, jsonResp)
	}

	wanted := make(map[string]bool, len(req.Candidates))
	for _, c := range req.Candidates {
		wanted[c.ID] = true
	}

	scores := make(map[string]float64, len(req.Candidates))
	for _, s := range resp.Scores {
		if s.Score == nil || !wanted[s.CandidateID] {
			continue
		}
		scores[s.CandidateID] = clampScore(*s.Score)
	}
	if len(scores) == 0 && len(req.Candidates) == 1 && resp.Score != nil {
		scores[req.Candidates[0].ID] = clampScore(*resp.Score)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("LLM response contained no usable scores")
	}
	return scores, nil
}

func clampScore(v float64) float64 {
	if v < MinLLMScore {
		return MinLLMScore
	}
	if v > MaxLLMScore {
		return MaxLLMScore
	}
	return v
}

func (o *LLMOracle) buildScorePrompt(req Request) string {
	var candidates strings.Builder
	for _, c := range req.Candidates {
		fmt.Fprintf(&candidates, "### candidate_id: %s\n", c.ID)
		rec := c.Record
		if len(rec.Skills) > 0 {
			fmt.Fprintf(&candidates, "Skills: %s\n", strings.Join(rec.Skills, ", "))
		}
		if len(rec.Education) > 0 {
			edu := make([]string, len(rec.Education))
			for i, e := range rec.Education {
				edu[i] = e.String()
			}
			fmt.Fprintf(&candidates, "Education: %s\n", strings.Join(edu, "; "))
		}
		if rec.Location != "" {
			fmt.Fprintf(&candidates, "Location: %s\n", rec.Location)
		}
		fmt.Fprintf(&candidates, "Resume:\n%s\n\n", strings.TrimSpace(rec.Document))
	}

	rubricText := o.rubric.Text()
	clause := ""
	rubricSection := ""
	if rubricText != "" {
		clause = " using the provided rubric"
		rubricSection = "\n## Evaluation Rubric:\n" + rubricText
	}

	template := prompts.MustGet(prompts.RankingFile, prompts.KeyScoreCandidates)
	return prompts.Format(template, map[string]string{
		"JobDescription": strings.TrimSpace(req.Query),
		"Rubric":         rubricSection,
		"RubricClause":   clause,
		"Candidates":     strings.TrimSpace(candidates.String()),
	})
}
