// Package pipeline orchestrates a ranking run: BM25 ranking, LLM reranking of the top window
// and optional evaluation against a reference.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jonathan/resume-ranker/internal/db"
	"github.com/jonathan/resume-ranker/internal/evaluation"
	"github.com/jonathan/resume-ranker/internal/metrics"
	"github.com/jonathan/resume-ranker/internal/ranking"
	"github.com/jonathan/resume-ranker/internal/rerank"
	"github.com/jonathan/resume-ranker/internal/store"
	"github.com/jonathan/resume-ranker/internal/types"
)

const tracerName = "resume-ranker/pipeline"

// Stage names used for durations and metrics.
const (
	StageRank     = "rank"
	StageRerank   = "rerank"
	StageEvaluate = "evaluate"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Recorder persists finished runs. *db.DB implements it.
type Recorder interface {
	RecordRun(ctx context.Context, rec *db.RunRecord) error
}

// Result is the outcome of one run. It always carries the best ranking achieved.
type Result struct {
	RunID        uuid.UUID               `json:"run_id"`
	State        State                   `json:"state"`
	StageReached State                   `json:"stage_reached"`
	Final        *types.RankingResult    `json:"final"`
	BM25         *types.RankingResult    `json:"bm25"`
	Degraded     bool                    `json:"degraded"`
	FallbackIDs  []string                `json:"fallback_ids,omitempty"`
	RerankReport rerank.Report           `json:"rerank_report"`
	Reference    *types.Reference        `json:"reference,omitempty"`
	Evaluation   *types.EvaluationReport `json:"evaluation,omitempty"`
	// Durations is keyed by StageRank, StageRerank and StageEvaluate.
	Durations map[string]time.Duration `json:"-"`
	// DurationsMS mirrors Durations in milliseconds for JSON output.
	DurationsMS map[string]int64 `json:"durations_ms"`
}

// Orchestrator runs the pipeline. It holds no per-run state and may be shared between
// concurrent runs.
type Orchestrator struct {
	ranker     *ranking.Ranker
	reranker   *rerank.Reranker
	evaluator  *evaluation.Evaluator
	windowK    int
	judge      *rerank.Reranker
	recorder   Recorder
	logger     *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	onProgress ProgressCallback
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWindowK sets how many top BM25 candidates are reranked. Negative values mean 0.
func WithWindowK(k int) Option {
	return func(o *Orchestrator) {
		if k < 0 {
			k = 0
		}
		o.windowK = k
	}
}

// WithJudge sets a reranker used to grade the final ranking when no reference is given.
func WithJudge(judge *rerank.Reranker) Option {
	return func(o *Orchestrator) { o.judge = judge }
}

// WithRecorder persists every finished run. Recording failures are logged, never returned.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithProgress registers a callback receiving one event per state transition.
func WithProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.onProgress = cb }
}

// New creates an Orchestrator. Nil components are replaced with defaults: the default BM25
// ranker, a reranker without oracle (every run degrades to lexical order) and the default
// evaluator.
func New(ranker *ranking.Ranker, reranker *rerank.Reranker, evaluator *evaluation.Evaluator, options ...Option) *Orchestrator {
	o := &Orchestrator{
		ranker:    ranker,
		reranker:  reranker,
		evaluator: evaluator,
		windowK:   rerank.DefaultWindowK,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.ranker == nil {
		o.ranker, _ = ranking.NewRanker(ranking.DefaultOptions(), ranking.WithLogger(o.logger))
	}
	if o.reranker == nil {
		o.reranker = rerank.New(nil, rerank.DefaultOptions(), rerank.WithLogger(o.logger), rerank.WithMetrics(o.metrics))
	}
	if o.evaluator == nil {
		o.evaluator = evaluation.New(evaluation.DefaultOptions())
	}
	return o
}

// Run executes the pipeline with default components.
func Run(ctx context.Context, query string, records []types.ResumeRecord, ref *types.Reference) (*Result, error) {
	return New(nil, nil, nil).Run(ctx, query, records, ref)
}

// run carries the mutable state of a single invocation.
type run struct {
	o      *Orchestrator
	result *Result
	logger *zap.Logger
}

func (r *run) advance(next State, message string, content any) error {
	current := r.result.State
	if !current.CanTransition(next) {
		return fmt.Errorf("invalid state transition %s -> %s", current, next)
	}
	r.result.State = next
	if !next.Terminal() {
		r.result.StageReached = next
	}
	r.logger.Debug("state transition",
		zap.String("from", current.String()),
		zap.String("to", next.String()),
	)
	if r.o.onProgress != nil {
		r.o.onProgress(ProgressEvent{
			Step:     next.String(),
			Category: next.Category(),
			Message:  message,
			RunID:    r.result.RunID.String(),
			Content:  content,
		})
	}
	return nil
}

func (r *run) observe(stage string, start time.Time) {
	d := time.Since(start)
	r.result.Durations[stage] = d
	r.result.DurationsMS[stage] = d.Milliseconds()
	r.o.metrics.ObserveStage(stage, d)
}

// Run ranks records against query, reranks the top window and, when a reference is given or
// a judge is configured, evaluates the final ranking.
//
// An *types.InputError for the query or records fails the run before any ranking happens.
// Oracle and evaluation problems never fail a run: they show up as Degraded and FallbackIDs,
// or as a not-evaluable Evaluation. The returned Result is non-nil even on error.
func (o *Orchestrator) Run(ctx context.Context, query string, records []types.ResumeRecord, ref *types.Reference) (*Result, error) {
	runID := uuid.New()
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID.String()),
		attribute.Int("record_count", len(records)),
		attribute.Int("window_k", o.windowK),
	)

	r := &run{
		o: o,
		result: &Result{
			RunID:        runID,
			State:        StateReceived,
			StageReached: StateReceived,
			Durations:    make(map[string]time.Duration),
			DurationsMS:  make(map[string]int64),
		},
		logger: o.logger.With(zap.String("run_id", runID.String())),
	}
	res := r.result

	if strings.TrimSpace(query) == "" {
		return o.fail(r, span, &types.InputError{Field: "query", Message: "must not be empty"})
	}
	docs, err := store.New(records)
	if err != nil {
		return o.fail(r, span, err)
	}

	start := time.Now()
	_, rankSpan := o.tracer.Start(ctx, "Ranker.Rank")
	bm25 := o.ranker.Rank(query, docs.Records())
	rankSpan.SetAttributes(attribute.Int("candidates", bm25.Len()))
	rankSpan.End()
	r.observe(StageRank, start)
	res.BM25 = bm25
	res.Final = bm25
	if err := r.advance(StateRanked, fmt.Sprintf("Ranked %d candidates with BM25", bm25.Len()), bm25); err != nil {
		return o.fail(r, span, err)
	}

	start = time.Now()
	rerankCtx, rerankSpan := o.tracer.Start(ctx, "Reranker.Rerank")
	final, report := o.reranker.Rerank(rerankCtx, query, bm25, docs, o.windowK)
	rerankSpan.SetAttributes(
		attribute.Int("window", report.WindowSize),
		attribute.Int("scored", report.Scored),
		attribute.Int("fallbacks", len(report.FallbackIDs)),
		attribute.Bool("degraded", report.Degraded),
	)
	rerankSpan.End()
	r.observe(StageRerank, start)
	res.Final = final
	res.RerankReport = report
	res.Degraded = report.Degraded
	res.FallbackIDs = report.FallbackIDs
	if report.Degraded {
		r.logger.Warn("reranking degraded to lexical order",
			zap.Strings("fallback_ids", report.FallbackIDs),
			zap.Bool("unreachable", report.Unreachable),
			zap.Bool("cancelled", report.Cancelled),
		)
	}
	if err := r.advance(StateReranked, rerankMessage(report), report); err != nil {
		return o.fail(r, span, err)
	}

	if ctx.Err() == nil && (ref != nil || o.judge != nil) {
		start = time.Now()
		evalCtx, evalSpan := o.tracer.Start(ctx, "Evaluator.Evaluate")
		res.Reference, res.Evaluation = o.evaluate(evalCtx, r, query, docs, ref)
		evalSpan.SetAttributes(attribute.Bool("evaluable", res.Evaluation.Evaluable))
		evalSpan.End()
		r.observe(StageEvaluate, start)
		if err := r.advance(StateEvaluated, evaluationMessage(res.Evaluation), res.Evaluation); err != nil {
			return o.fail(r, span, err)
		}
	}

	if err := r.advance(StateDone, "Run complete", nil); err != nil {
		return o.fail(r, span, err)
	}
	o.metrics.ObserveRun(res.State.String(), res.Degraded, res.Final.Len())
	span.SetAttributes(
		attribute.String("stage_reached", res.StageReached.String()),
		attribute.Bool("degraded", res.Degraded),
	)
	r.logger.Info("run complete",
		zap.String("stage", res.StageReached.String()),
		zap.Int("candidates", res.Final.Len()),
		zap.Bool("degraded", res.Degraded),
	)

	o.record(ctx, r, query)
	return res, nil
}

// evaluate resolves the reference (asking the judge when none is given) and evaluates the
// final ranking. The returned report is never nil.
func (o *Orchestrator) evaluate(ctx context.Context, r *run, query string, docs *store.Store, ref *types.Reference) (*types.Reference, *types.EvaluationReport) {
	res := r.result
	if ref == nil {
		judged, err := evaluation.JudgeReference(ctx, o.judge, query, res.Final, docs, o.windowK)
		if err != nil {
			r.logger.Warn("judge could not grade the ranking", zap.Error(err))
			return nil, &types.EvaluationReport{
				Reason:      err.Error(),
				Format:      types.ReferenceGraded,
				Metrics:     map[string]float64{},
				Unjudged:    res.Final.Len(),
				UnjudgedIDs: res.Final.IDs(),
			}
		}
		ref = judged
	}

	report, err := o.evaluator.Evaluate(res.Final, ref)
	if err != nil {
		r.logger.Warn("ranking is not evaluable", zap.Error(err))
	}
	if report.Evaluable {
		o.metrics.ObserveEvaluation(report.Metrics)
	}
	return ref, report
}

func (o *Orchestrator) fail(r *run, span trace.Span, err error) (*Result, error) {
	_ = r.advance(StateFailed, err.Error(), nil)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.metrics.ObserveRun(StateFailed.String(), false, 0)
	r.logger.Error("run failed", zap.Error(err))
	return r.result, err
}

func (o *Orchestrator) record(ctx context.Context, r *run, query string) {
	if o.recorder == nil {
		return
	}
	res := r.result
	rec := &db.RunRecord{
		ID:           res.RunID,
		Query:        query,
		QueryHash:    hashQuery(query),
		State:        res.State.String(),
		StageReached: res.StageReached.String(),
		Degraded:     res.Degraded,
		BM25:         res.BM25,
		Final:        res.Final,
		Reference:    res.Reference,
		Evaluation:   res.Evaluation,
		RerankReport: res.RerankReport,
		Durations:    res.Durations,
	}
	// recorded even when the caller has been cancelled
	if err := o.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("failed to record run", zap.Error(err))
	}
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

func rerankMessage(report rerank.Report) string {
	switch {
	case report.WindowSize == 0:
		return "Reranking skipped"
	case report.Cancelled:
		return "Reranking cancelled, kept BM25 order"
	case report.Unreachable:
		return "Oracle unreachable, kept BM25 order"
	case report.Degraded:
		return fmt.Sprintf("Reranked top %d, %d fell back to BM25", report.WindowSize, len(report.FallbackIDs))
	default:
		return fmt.Sprintf("Reranked top %d candidates", report.WindowSize)
	}
}

func evaluationMessage(report *types.EvaluationReport) string {
	if !report.Evaluable {
		return "Not evaluable: " + report.Reason
	}
	return fmt.Sprintf("Evaluated %d judged candidates", report.Judged)
}
