// Package rerank refines the head of a lexical ranking with an external relevance oracle.
package rerank

import (
	"context"

	"github.com/jonathan/resume-ranker/internal/types"
)

// Candidate is one resume sent to the oracle.
type Candidate struct {
	ID     string
	Record types.ResumeRecord
}

// Request asks the oracle to score one or more candidates against a query.
type Request struct {
	Query      string
	Candidates []Candidate
}

// IDs returns the candidate IDs of the request in order.
func (r Request) IDs() []string {
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// Oracle scores candidates. Implementations may omit candidates from the returned map;
// omitted candidates are treated as individual failures.
type Oracle interface {
	Score(ctx context.Context, req Request) (map[string]float64, error)
}

// Preparer is implemented by oracles that need per-query setup (such as a scoring rubric).
// Prepare returns an oracle scoped to the query; the receiver is left unchanged.
type Preparer interface {
	Prepare(ctx context.Context, query string) (Oracle, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, req Request) (map[string]float64, error)

// Score calls f.
func (f OracleFunc) Score(ctx context.Context, req Request) (map[string]float64, error) {
	return f(ctx, req)
}

// DocumentSource resolves candidate IDs to records. *store.Store satisfies it.
type DocumentSource interface {
	Get(id string) (types.ResumeRecord, bool)
}
