// Package ranking provides lexical BM25 ranking of resume records against a job description.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/jonathan/resume-ranker/internal/textproc"
	"github.com/jonathan/resume-ranker/internal/types"
	"go.uber.org/zap"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
	// DefaultK2 saturates repeated query terms. Zero disables query-term weighting.
	DefaultK2 = 1.69
)

// Options holds BM25 tuning parameters.
type Options struct {
	K1 float64
	B  float64
	K2 float64
}

// DefaultOptions returns the standard parameter set.
func DefaultOptions() Options {
	return Options{K1: DefaultK1, B: DefaultB, K2: DefaultK2}
}

// Validate checks parameter ranges.
func (o Options) Validate() error {
	if math.IsNaN(o.K1) || o.K1 < 0 {
		return fmt.Errorf("bm25 k1 must be >= 0, got %v", o.K1)
	}
	if math.IsNaN(o.B) || o.B < 0 || o.B > 1 {
		return fmt.Errorf("bm25 b must be in [0, 1], got %v", o.B)
	}
	if math.IsNaN(o.K2) || o.K2 < 0 {
		return fmt.Errorf("bm25 k2 must be >= 0, got %v", o.K2)
	}
	return nil
}

// Ranker scores records against a query with BM25.
type Ranker struct {
	opts      Options
	tokenizer *textproc.Tokenizer
	logger    *zap.Logger
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithTokenizer overrides the default tokenizer.
func WithTokenizer(t *textproc.Tokenizer) RankerOption {
	return func(r *Ranker) { r.tokenizer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RankerOption {
	return func(r *Ranker) { r.logger = l }
}

// NewRanker creates a Ranker after validating opts.
func NewRanker(opts Options, options ...RankerOption) (*Ranker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := &Ranker{
		opts:      opts,
		tokenizer: textproc.Default(),
		logger:    zap.NewNop(),
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// Rank scores records with the default options.
func Rank(query string, records []types.ResumeRecord) *types.RankingResult {
	r, _ := NewRanker(DefaultOptions())
	return r.Rank(query, records)
}

// docStats is the per-document part of the corpus statistics.
type docStats struct {
	id     string
	length int
	tf     map[string]int
}

// corpusStats is derived from the record set of a single call and never cached.
type corpusStats struct {
	n     int
	avgdl float64
	df    map[string]int
	docs  []docStats
}

func (r *Ranker) buildStats(records []types.ResumeRecord) corpusStats {
	stats := corpusStats{
		n:    len(records),
		df:   make(map[string]int),
		docs: make([]docStats, len(records)),
	}
	total := 0
	for i, rec := range records {
		terms := r.tokenizer.Tokenize(rec.Document)
		tf := textproc.TermFrequencies(terms)
		for term := range tf {
			stats.df[term]++
		}
		stats.docs[i] = docStats{id: rec.ID, length: len(terms), tf: tf}
		total += len(terms)
	}
	if stats.n > 0 {
		stats.avgdl = float64(total) / float64(stats.n)
	}
	return stats
}

// Rank returns one entry per record, ordered by score desc then ID asc.
// An empty record set yields an empty result. A query with no terms scores every record 0.
func (r *Ranker) Rank(query string, records []types.ResumeRecord) *types.RankingResult {
	result := &types.RankingResult{
		Stage:      types.StageBM25,
		Candidates: make([]types.ScoredCandidate, 0, len(records)),
	}
	if len(records) == 0 {
		return result
	}

	queryTF := textproc.TermFrequencies(r.tokenizer.Tokenize(query))
	// summation order is fixed so float results are reproducible
	queryTerms := make([]string, 0, len(queryTF))
	for term := range queryTF {
		queryTerms = append(queryTerms, term)
	}
	sort.Strings(queryTerms)
	stats := r.buildStats(records)

	for _, doc := range stats.docs {
		score := 0.0
		for _, term := range queryTerms {
			qf := queryTF[term]
			n := stats.df[term]
			if n == 0 {
				continue
			}
			w := IDF(stats.n, n) * TermWeight(doc.tf[term], doc.length, stats.avgdl, r.opts.K1, r.opts.B)
			score += w * QueryTermWeight(qf, r.opts.K2)
		}
		result.Candidates = append(result.Candidates, types.ScoredCandidate{
			ID:     doc.id,
			Score:  score,
			Source: types.StageBM25,
		})
	}

	SortCandidates(result.Candidates)

	r.logger.Debug("bm25 ranking complete",
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("query_terms", len(queryTF)),
		zap.Float64("avgdl", stats.avgdl),
	)
	return result
}

// IDF is the smoothed inverse document frequency for a term found in n of N documents.
// It is strictly positive whenever 0 < n <= N.
func IDF(totalDocs, docFreq int) float64 {
	N := float64(totalDocs)
	n := float64(docFreq)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// TermWeight is the saturated, length-normalized term frequency component.
// It increases with tf and does not increase with document length.
func TermWeight(tf, docLen int, avgdl, k1, b float64) float64 {
	if tf <= 0 {
		return 0
	}
	f := float64(tf)
	lengthNorm := 1.0
	if avgdl > 0 {
		lengthNorm = 1 - b + b*float64(docLen)/avgdl
	}
	return f * (k1 + 1) / (f + k1*lengthNorm)
}

// QueryTermWeight saturates repeated query terms. It equals 1 for qf == 1 or k2 == 0.
func QueryTermWeight(qf int, k2 float64) float64 {
	if k2 <= 0 || qf <= 0 {
		return 1
	}
	q := float64(qf)
	return ((k2 + 1) * q) / (k2 + q)
}
