package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/resume-ranker/internal/config"
	"github.com/jonathan/resume-ranker/internal/db"
	"github.com/jonathan/resume-ranker/internal/evaluation"
	"github.com/jonathan/resume-ranker/internal/export"
	"github.com/jonathan/resume-ranker/internal/ingestion"
	"github.com/jonathan/resume-ranker/internal/llm"
	"github.com/jonathan/resume-ranker/internal/metrics"
	"github.com/jonathan/resume-ranker/internal/observability"
	"github.com/jonathan/resume-ranker/internal/pipeline"
	"github.com/jonathan/resume-ranker/internal/ranking"
	"github.com/jonathan/resume-ranker/internal/rerank"
	"github.com/jonathan/resume-ranker/internal/store"
	"github.com/jonathan/resume-ranker/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the complete ranking pipeline",
	Long: `Runs BM25 ranking -> LLM reranking of the top window -> evaluation.

Evaluation happens when --reference is given, or when --judge asks the advanced-tier model
to grade the final ranking. Without an API key the LLM stage is skipped and the run is
reported as degraded.

Configuration can be loaded from a YAML/JSON file using --config. Command-line arguments
override config file values.`,
	RunE: runPipelineCmd,
}

type runOptions struct {
	Records    string
	Query      querySource
	Reference  string
	Judge      bool
	Out        string
	XLSX       string
	MetricsOut string
	DBURL      string
	Verbose    bool
}

var (
	runOpts            runOptions
	runConfigPath      string
	runRefFormat       string
	runWindowK         int
	runK1              float64
	runB               float64
	runProvider        string
	runModel           string
	runJudgeModel      string
	runAPIKey          string
	runNoRubric        bool
	runOracleTimeout   time.Duration
	runRetryBudget     int
	runConcurrency     int
	runBatchSize       int
	runCutoffK         int
	runRelevanceThresh float64
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to a YAML/JSON config file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runOpts.Records, "records", "r", "", "Path to resume records (.json or .csv)")
	addQueryFlags(runCommand, &runOpts.Query)
	runCommand.Flags().StringVar(&runOpts.Reference, "reference", "", "Path to a reference ordering or grades (JSON)")
	runCommand.Flags().StringVar(&runRefFormat, "reference-format", "", "Reference format when the file does not say: order or graded")
	runCommand.Flags().BoolVar(&runOpts.Judge, "judge", false, "Grade the final ranking with the judge model when no reference is given")

	runCommand.Flags().IntVarP(&runWindowK, "window-k", "k", rerank.DefaultWindowK, "Number of top BM25 candidates to rerank")
	runCommand.Flags().Float64Var(&runK1, "k1", ranking.DefaultK1, "BM25 term-frequency saturation")
	runCommand.Flags().Float64Var(&runB, "b", ranking.DefaultB, "BM25 length normalization")

	// API key can be passed as a flag, or read from GEMINI_API_KEY / OPENAI_API_KEY
	runCommand.Flags().StringVar(&runProvider, "provider", "", "LLM provider: gemini or openai")
	runCommand.Flags().StringVar(&runModel, "model", "", "Model used to score candidates")
	runCommand.Flags().StringVar(&runJudgeModel, "judge-model", "", "Model used by --judge")
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "LLM API key (optional, defaults to the provider's env var)")
	runCommand.Flags().BoolVar(&runNoRubric, "no-rubric", false, "Score without generating a rubric first")

	runCommand.Flags().DurationVar(&runOracleTimeout, "oracle-timeout", rerank.DefaultAttemptTimeout, "Timeout for each oracle call")
	runCommand.Flags().IntVar(&runRetryBudget, "retry-budget", rerank.DefaultRetryBudget, "Attempts per oracle request")
	runCommand.Flags().IntVar(&runConcurrency, "concurrency", rerank.DefaultConcurrency, "Maximum oracle requests in flight")
	runCommand.Flags().IntVar(&runBatchSize, "batch-size", rerank.DefaultBatchSize, "Candidates per oracle request")

	runCommand.Flags().IntVar(&runCutoffK, "cutoff-k", evaluation.DefaultCutoffK, "Rank cutoff for precision, NDCG and MAP")
	runCommand.Flags().Float64Var(&runRelevanceThresh, "relevance-threshold", evaluation.DefaultRelevanceThreshold, "Minimum grade counted as relevant")

	runCommand.Flags().StringVarP(&runOpts.Out, "out", "o", "", "Write the full result as JSON to this file")
	runCommand.Flags().StringVar(&runOpts.XLSX, "xlsx", "", "Write a spreadsheet report to this file")
	runCommand.Flags().StringVar(&runOpts.MetricsOut, "metrics-out", "", "Write Prometheus metrics in textfile format to this file")

	// Database URL for run persistence
	runCommand.Flags().StringVar(&runOpts.DBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().BoolVarP(&runOpts.Verbose, "verbose", "v", false, "Print progress and debug logs")

	_ = runCommand.MarkFlagRequired("records")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("reference-format") {
		cfg.Eval.ReferenceFormat = runRefFormat
	}
	if flags.Changed("window-k") {
		cfg.Rerank.WindowK = runWindowK
	}
	if flags.Changed("k1") {
		cfg.BM25.K1 = runK1
	}
	if flags.Changed("b") {
		cfg.BM25.B = runB
	}
	if flags.Changed("provider") {
		cfg.LLM.Provider = runProvider
	}
	if flags.Changed("model") {
		cfg.LLM.Model = runModel
	}
	if flags.Changed("judge-model") {
		cfg.LLM.JudgeModel = runJudgeModel
	}
	if flags.Changed("api-key") {
		cfg.LLM.APIKey = config.Secret(runAPIKey)
	}
	if flags.Changed("no-rubric") {
		cfg.LLM.Rubric = !runNoRubric
	}
	if flags.Changed("oracle-timeout") {
		cfg.Rerank.OracleTimeout = runOracleTimeout
	}
	if flags.Changed("retry-budget") {
		cfg.Rerank.OracleRetryBudget = runRetryBudget
	}
	if flags.Changed("concurrency") {
		cfg.Rerank.Concurrency = runConcurrency
	}
	if flags.Changed("batch-size") {
		cfg.Rerank.BatchSize = runBatchSize
	}
	if flags.Changed("cutoff-k") {
		cfg.Eval.CutoffK = runCutoffK
	}
	if flags.Changed("relevance-threshold") {
		cfg.Eval.RelevanceThreshold = runRelevanceThresh
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := newLLMClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if client != nil {
		defer func() { _ = client.Close() }()
	}

	_, err = executeRun(cmd.Context(), cfg, client, runOpts, os.Stdout)
	return err
}

// executeRun wires the pipeline from cfg and runs it once. A nil client runs without an
// oracle, which degrades reranking to the BM25 order.
func executeRun(ctx context.Context, cfg *config.Config, client llm.Client, opts runOptions, out io.Writer) (*pipeline.Result, error) {
	logger, err := newLogger(cfg.Log, opts.Verbose)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	if opts.Judge && client == nil {
		return nil, fmt.Errorf("--judge requires an LLM API key (--api-key, llm.api_key or the provider's env var)")
	}

	posting, err := resolveQuery(ctx, opts.Query)
	if err != nil {
		return nil, err
	}
	records, err := ingestion.LoadRecords(opts.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	var ref *types.Reference
	if opts.Reference != "" {
		format, err := types.ParseReferenceFormat(cfg.Eval.ReferenceFormat)
		if err != nil {
			return nil, err
		}
		ref, err = ingestion.LoadReference(opts.Reference, format)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference: %w", err)
		}
	}

	m := metrics.New()
	ranker, err := ranking.NewRanker(cfg.RankingOptions(), ranking.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var oracle rerank.Oracle
	if client != nil {
		oracleOpts := []rerank.LLMOracleOption{rerank.WithOracleLogger(logger)}
		if !cfg.LLM.Rubric {
			oracleOpts = append(oracleOpts, rerank.WithoutRubric())
		}
		oracle = rerank.NewLLMOracle(client, oracleOpts...)
		logger.Info("oracle configured",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", client.GetModel(llm.TierLite)),
		)
	} else {
		logger.Warn("no LLM API key configured, reranking keeps BM25 order")
	}
	reranker := rerank.New(oracle, cfg.RerankOptions(), rerank.WithLogger(logger), rerank.WithMetrics(m))

	pipeOpts := []pipeline.Option{
		pipeline.WithWindowK(cfg.Rerank.WindowK),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	}
	if opts.Judge {
		judgeOracle := rerank.NewLLMOracle(client, rerank.WithTier(llm.TierAdvanced), rerank.WithOracleLogger(logger.Named("judge")))
		judge := rerank.New(judgeOracle, cfg.RerankOptions(), rerank.WithLogger(logger.Named("judge")))
		pipeOpts = append(pipeOpts, pipeline.WithJudge(judge))
	}
	if opts.Verbose {
		pipeOpts = append(pipeOpts, pipeline.WithProgress(func(e pipeline.ProgressEvent) {
			_, _ = fmt.Fprintf(out, "[%s] %s\n", e.Step, e.Message)
		}))
	}

	if dsn := databaseURL(opts.DBURL, cfg); dsn != "" {
		database, err := db.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, pipeline.WithRecorder(database))
	}

	orchestrator := pipeline.New(ranker, reranker, evaluation.New(cfg.EvaluationOptions()), pipeOpts...)
	res, err := orchestrator.Run(ctx, posting.Text, records, ref)
	if err != nil {
		return res, err
	}

	printer := observability.NewPrinter(out)
	printer.PrintRanking("FINAL RANKING", res.Final)
	printer.PrintRerankReport(res.RerankReport)
	if res.Evaluation != nil {
		printer.PrintEvaluation(res.Evaluation)
	}
	printer.PrintDurations([]string{pipeline.StageRank, pipeline.StageRerank, pipeline.StageEvaluate}, res.Durations)
	_, _ = fmt.Fprintf(out, "Run %s: %s (stage reached: %s)\n", res.RunID, res.State, res.StageReached)

	if opts.Out != "" {
		if err := writeJSON(opts.Out, res); err != nil {
			return res, err
		}
		_, _ = fmt.Fprintf(out, "Result written to %s\n", opts.Out)
	}
	if opts.XLSX != "" {
		docs, err := store.New(records)
		if err != nil {
			return res, err
		}
		path, err := export.ToExcel(&export.Report{
			RunID:       res.RunID.String(),
			Query:       posting.Text,
			State:       res.State.String(),
			Degraded:    res.Degraded,
			FallbackIDs: res.FallbackIDs,
			Final:       res.Final,
			BM25:        res.BM25,
			Evaluation:  res.Evaluation,
			Records:     docs,
		}, opts.XLSX)
		if err != nil {
			return res, err
		}
		_, _ = fmt.Fprintf(out, "Spreadsheet written to %s\n", path)
	}
	if opts.MetricsOut != "" {
		if err := m.WriteTextfile(opts.MetricsOut); err != nil {
			return res, err
		}
	}
	return res, nil
}
