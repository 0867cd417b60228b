package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonathan/resume-ranker/internal/metrics"
	"github.com/jonathan/resume-ranker/internal/ranking"
	"github.com/jonathan/resume-ranker/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default resilience settings.
const (
	DefaultWindowK        = 10
	DefaultBatchSize      = 1
	DefaultConcurrency    = 4
	DefaultAttemptTimeout = 30 * time.Second
	DefaultRetryBudget    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Options configures a Reranker.
type Options struct {
	// BatchSize is the number of candidates per oracle request.
	BatchSize int
	// Concurrency bounds the number of oracle requests in flight.
	Concurrency int
	// AttemptTimeout bounds every single oracle attempt.
	AttemptTimeout time.Duration
	// RetryBudget is the maximum number of attempts per request.
	RetryBudget    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the default resilience settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:      DefaultBatchSize,
		Concurrency:    DefaultConcurrency,
		AttemptTimeout: DefaultAttemptTimeout,
		RetryBudget:    DefaultRetryBudget,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = d.AttemptTimeout
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = d.RetryBudget
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Report describes how a rerank went.
type Report struct {
	WindowSize     int      `json:"window_size"`
	Requests       int      `json:"requests"`
	FailedRequests int      `json:"failed_requests"`
	Scored         int      `json:"scored"`
	Degraded       bool     `json:"degraded"`
	Unreachable    bool     `json:"unreachable"`
	Cancelled      bool     `json:"cancelled"`
	Prepared       bool     `json:"prepared"`
	FallbackIDs    []string `json:"fallback_ids,omitempty"`
}

// Reranker reorders the top of a ranking with oracle scores.
type Reranker struct {
	oracle  Oracle
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reranker) { r.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reranker) { r.metrics = m }
}

// New creates a Reranker. A nil oracle is allowed and behaves as an unreachable one.
func New(oracle Oracle, opts Options, options ...Option) *Reranker {
	r := &Reranker{
		oracle: oracle,
		opts:   opts.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// batchOutcome is the result of one oracle request.
type batchOutcome struct {
	scores map[string]float64
	err    error
}

// Rerank rescores the first k entries of base and returns the new ranking.
//
// Entries past k keep their exact score and order. Within the window, candidates the oracle
// failed to score keep their original position and lexical score; scored candidates fill the
// remaining slots by oracle score desc, ID asc. On cancellation the lexical ranking is returned.
// base is never modified.
func (r *Reranker) Rerank(ctx context.Context, query string, base *types.RankingResult, docs DocumentSource, k int) (*types.RankingResult, Report) {
	result := base.Clone()
	if result == nil {
		result = &types.RankingResult{Stage: types.StageBM25}
	}
	if k > len(result.Candidates) {
		k = len(result.Candidates)
	}
	if k <= 0 {
		return result, Report{}
	}

	window := result.Candidates[:k]
	report := Report{WindowSize: k}

	if r.oracle == nil {
		r.logger.Warn("no oracle configured, keeping lexical order")
		return result, fallbackAll(report, window, true, false, r.metrics)
	}
	if ctx.Err() != nil {
		return result, fallbackAll(report, window, false, true, r.metrics)
	}

	oracle := r.oracle
	if p, ok := oracle.(Preparer); ok {
		prepared, err := r.prepareWithRetry(ctx, p, query)
		switch {
		case err != nil && ctx.Err() != nil:
			return result, fallbackAll(report, window, false, true, r.metrics)
		case err != nil:
			r.logger.Warn("oracle preparation failed, scoring without it", zap.Error(err))
		default:
			oracle = prepared
			report.Prepared = true
		}
	}

	failed := make(map[string]bool)
	batches := r.buildBatches(query, window, docs, failed)
	report.Requests = len(batches)

	outcomes := make([]batchOutcome, len(batches))
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)
	for i := range batches {
		g.Go(func() error {
			scores, err := r.scoreWithRetry(ctx, oracle, batches[i])
			outcomes[i] = batchOutcome{scores: scores, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		r.logger.Warn("rerank cancelled, keeping lexical order", zap.Error(ctx.Err()))
		return result, fallbackAll(report, window, false, true, r.metrics)
	}

	scored := make(map[string]float64, k)
	for i, out := range outcomes {
		if out.err != nil {
			report.FailedRequests++
			for _, id := range batches[i].IDs() {
				failed[id] = true
			}
			r.logger.Warn("oracle request failed",
				zap.Strings("candidate_ids", batches[i].IDs()),
				zap.Error(out.err),
			)
			continue
		}
		for _, id := range batches[i].IDs() {
			score, ok := out.scores[id]
			if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
				failed[id] = true
				r.logger.Warn("oracle returned no usable score", zap.String("candidate_id", id))
				continue
			}
			scored[id] = score
		}
	}

	if report.Requests > 0 && report.FailedRequests == report.Requests {
		report.Unreachable = true
	}

	r.assembleWindow(window, scored, failed)

	report.Scored = len(scored)
	for _, c := range window {
		if failed[c.ID] {
			report.FallbackIDs = append(report.FallbackIDs, c.ID)
		}
	}
	report.Degraded = len(report.FallbackIDs) > 0
	r.metrics.ObserveFallbacks(len(report.FallbackIDs))

	if report.Scored > 0 {
		result.Stage = types.StageLLM
	}
	r.logger.Info("rerank complete",
		zap.Int("window", k),
		zap.Int("scored", report.Scored),
		zap.Int("fallbacks", len(report.FallbackIDs)),
		zap.Bool("unreachable", report.Unreachable),
	)
	return result, report
}

// buildBatches groups window candidates into requests. Candidates without a record are
// marked failed and not sent.
func (r *Reranker) buildBatches(query string, window []types.ScoredCandidate, docs DocumentSource, failed map[string]bool) []Request {
	var batches []Request
	current := Request{Query: query}
	for _, c := range window {
		var rec types.ResumeRecord
		ok := false
		if docs != nil {
			rec, ok = docs.Get(c.ID)
		}
		if !ok {
			failed[c.ID] = true
			r.logger.Warn("candidate has no record, skipping oracle", zap.String("candidate_id", c.ID))
			continue
		}
		current.Candidates = append(current.Candidates, Candidate{ID: c.ID, Record: rec})
		if len(current.Candidates) == r.opts.BatchSize {
			batches = append(batches, current)
			current = Request{Query: query}
		}
	}
	if len(current.Candidates) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (r *Reranker) scoreWithRetry(ctx context.Context, oracle Oracle, req Request) (map[string]float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxInterval = r.opts.MaxBackoff

	attempt := 0
	op := func() (map[string]float64, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
		defer cancel()

		scores, err := oracle.Score(attemptCtx, req)
		switch {
		case err == nil:
			r.metrics.ObserveOracleCall(metrics.OutcomeSuccess)
			return scores, nil
		case ctx.Err() != nil:
			r.metrics.ObserveOracleCall(metrics.OutcomeCancelled)
			return nil, backoff.Permanent(ctx.Err())
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			r.metrics.ObserveOracleCall(metrics.OutcomeTimeout)
		default:
			r.metrics.ObserveOracleCall(metrics.OutcomeError)
		}
		return nil, &types.OracleError{
			CandidateIDs: req.IDs(),
			Message:      fmt.Sprintf("attempt %d failed", attempt),
			Cause:        err,
		}
	}

	notify := func(err error, next time.Duration) {
		r.metrics.ObserveRetry()
		r.logger.Debug("retrying oracle request",
			zap.Strings("candidate_ids", req.IDs()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.RetryBudget)),
		backoff.WithNotify(notify),
	)
}

// prepareWithRetry runs the per-query preparation under the same attempt timeout and retry
// budget as scoring requests.
func (r *Reranker) prepareWithRetry(ctx context.Context, p Preparer, query string) (Oracle, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxInterval = r.opts.MaxBackoff

	attempt := 0
	op := func() (Oracle, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
		defer cancel()

		prepared, err := p.Prepare(attemptCtx, query)
		switch {
		case err == nil:
			r.metrics.ObserveOracleCall(metrics.OutcomeSuccess)
			return prepared, nil
		case ctx.Err() != nil:
			r.metrics.ObserveOracleCall(metrics.OutcomeCancelled)
			return nil, backoff.Permanent(ctx.Err())
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			r.metrics.ObserveOracleCall(metrics.OutcomeTimeout)
		default:
			r.metrics.ObserveOracleCall(metrics.OutcomeError)
		}
		return nil, fmt.Errorf("preparation attempt %d failed: %w", attempt, err)
	}

	notify := func(err error, next time.Duration) {
		r.metrics.ObserveRetry()
		r.logger.Debug("retrying oracle preparation",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.RetryBudget)),
		backoff.WithNotify(notify),
	)
}

// assembleWindow rewrites window in place: failed candidates stay where they are, scored
// candidates fill the other slots in oracle order.
func (r *Reranker) assembleWindow(window []types.ScoredCandidate, scored map[string]float64, failed map[string]bool) {
	movers := make([]types.ScoredCandidate, 0, len(scored))
	for _, c := range window {
		if failed[c.ID] {
			continue
		}
		movers = append(movers, types.ScoredCandidate{ID: c.ID, Score: scored[c.ID], Source: types.StageLLM})
	}
	ranking.SortCandidates(movers)

	next := 0
	for i := range window {
		if failed[window[i].ID] {
			continue
		}
		window[i] = movers[next]
		next++
	}
}

func fallbackAll(report Report, window []types.ScoredCandidate, unreachable, cancelled bool, m *metrics.Metrics) Report {
	report.Unreachable = unreachable
	report.Cancelled = cancelled
	report.Degraded = true
	report.FallbackIDs = make([]string, len(window))
	for i, c := range window {
		report.FallbackIDs[i] = c.ID
	}
	m.ObserveFallbacks(len(window))
	return report
}
