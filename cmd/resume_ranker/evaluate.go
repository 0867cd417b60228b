package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/resume-ranker/internal/config"
	"github.com/jonathan/resume-ranker/internal/db"
	"github.com/jonathan/resume-ranker/internal/evaluation"
	"github.com/jonathan/resume-ranker/internal/ingestion"
	"github.com/jonathan/resume-ranker/internal/observability"
	"github.com/jonathan/resume-ranker/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a saved ranking against a reference",
	Long: `Compute Spearman, Kendall tau, precision@k, NDCG@k, MAP@k and MRR for a ranking.

The ranking is read from a JSON file (as written by "rank --out") or loaded from the final
ranking of a stored run with --run-id.`,
	RunE: runEvaluateCmd,
}

type evaluateOptions struct {
	Ranking   string
	RunID     string
	DBURL     string
	Reference string
	Out       string
}

var (
	evalOpts           evaluateOptions
	evalConfigPath     string
	evalRefFormat      string
	evalCutoffK        int
	evalRelevanceThres float64
)

func init() {
	evaluateCmd.Flags().StringVar(&evalConfigPath, "config", "", "Path to a YAML/JSON config file")
	evaluateCmd.Flags().StringVar(&evalOpts.Ranking, "ranking", "", "Path to a ranking JSON file (mutually exclusive with --run-id)")
	evaluateCmd.Flags().StringVar(&evalOpts.RunID, "run-id", "", "Evaluate the final ranking of a stored run")
	evaluateCmd.Flags().StringVar(&evalOpts.DBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	evaluateCmd.Flags().StringVar(&evalOpts.Reference, "reference", "", "Path to a reference ordering or grades (JSON)")
	evaluateCmd.Flags().StringVar(&evalRefFormat, "reference-format", "", "Reference format when the file does not say: order or graded")
	evaluateCmd.Flags().IntVar(&evalCutoffK, "cutoff-k", evaluation.DefaultCutoffK, "Rank cutoff for precision, NDCG and MAP")
	evaluateCmd.Flags().Float64Var(&evalRelevanceThres, "relevance-threshold", evaluation.DefaultRelevanceThreshold, "Minimum grade counted as relevant")
	evaluateCmd.Flags().StringVarP(&evalOpts.Out, "out", "o", "", "Write the evaluation report as JSON to this file")

	_ = evaluateCmd.MarkFlagRequired("reference")

	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(evalConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("reference-format") {
		cfg.Eval.ReferenceFormat = evalRefFormat
	}
	if cmd.Flags().Changed("cutoff-k") {
		cfg.Eval.CutoffK = evalCutoffK
	}
	if cmd.Flags().Changed("relevance-threshold") {
		cfg.Eval.RelevanceThreshold = evalRelevanceThres
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err = evaluateRanking(cmd.Context(), cfg, evalOpts, os.Stdout)
	return err
}

// evaluateRanking loads a ranking and a reference and prints the evaluation report.
// A reference that shares no candidates with the ranking is reported, not returned as error.
func evaluateRanking(ctx context.Context, cfg *config.Config, opts evaluateOptions, out io.Writer) (*types.EvaluationReport, error) {
	result, err := loadRankingFor(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	format, err := types.ParseReferenceFormat(cfg.Eval.ReferenceFormat)
	if err != nil {
		return nil, err
	}
	ref, err := ingestion.LoadReference(opts.Reference, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference: %w", err)
	}

	report, err := evaluation.New(cfg.EvaluationOptions()).Evaluate(result, ref)
	if err != nil {
		return report, err
	}

	observability.NewPrinter(out).PrintEvaluation(report)
	if opts.Out != "" {
		if err := writeJSON(opts.Out, report); err != nil {
			return report, err
		}
		_, _ = fmt.Fprintf(out, "Evaluation written to %s\n", opts.Out)
	}
	return report, nil
}

func loadRankingFor(ctx context.Context, cfg *config.Config, opts evaluateOptions) (*types.RankingResult, error) {
	if opts.Ranking == "" && opts.RunID == "" {
		return nil, fmt.Errorf("either --ranking or --run-id must be provided")
	}
	if opts.Ranking != "" && opts.RunID != "" {
		return nil, fmt.Errorf("--ranking and --run-id are mutually exclusive; provide only one")
	}

	if opts.Ranking != "" {
		result, err := ingestion.LoadRanking(opts.Ranking)
		if err != nil {
			return nil, fmt.Errorf("failed to load ranking: %w", err)
		}
		return result, nil
	}

	runID, err := uuid.Parse(opts.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run ID format: %w", err)
	}
	dsn := databaseURL(opts.DBURL, cfg)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required with --run-id")
	}
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	result, err := database.GetRanking(ctx, runID, db.RankingFinal)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("run %s has no stored ranking", runID)
	}
	return result, nil
}
