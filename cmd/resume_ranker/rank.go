package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-ranker/internal/config"
	"github.com/jonathan/resume-ranker/internal/ingestion"
	"github.com/jonathan/resume-ranker/internal/observability"
	"github.com/jonathan/resume-ranker/internal/ranking"
	"github.com/jonathan/resume-ranker/internal/store"
	"github.com/jonathan/resume-ranker/internal/types"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank resume records with BM25 only",
	Long:  "Score every record against the job description with BM25 and print the lexical ranking. No LLM is called.",
	RunE:  runRankCmd,
}

type rankOptions struct {
	Records string
	Query   querySource
	Out     string
	Verbose bool
}

var (
	rankOpts       rankOptions
	rankConfigPath string
	rankK1         float64
	rankB          float64
	rankK2         float64
)

func init() {
	rankCmd.Flags().StringVar(&rankConfigPath, "config", "", "Path to a YAML/JSON config file")
	rankCmd.Flags().StringVarP(&rankOpts.Records, "records", "r", "", "Path to resume records (.json or .csv)")
	addQueryFlags(rankCmd, &rankOpts.Query)
	rankCmd.Flags().Float64Var(&rankK1, "k1", ranking.DefaultK1, "BM25 term-frequency saturation")
	rankCmd.Flags().Float64Var(&rankB, "b", ranking.DefaultB, "BM25 length normalization")
	rankCmd.Flags().Float64Var(&rankK2, "k2", ranking.DefaultK2, "BM25 query-term saturation (0 disables)")
	rankCmd.Flags().StringVarP(&rankOpts.Out, "out", "o", "", "Write the ranking as JSON to this file")
	rankCmd.Flags().BoolVarP(&rankOpts.Verbose, "verbose", "v", false, "Print debug logs")

	_ = rankCmd.MarkFlagRequired("records")

	rootCmd.AddCommand(rankCmd)
}

func runRankCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(rankConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("k1") {
		cfg.BM25.K1 = rankK1
	}
	if cmd.Flags().Changed("b") {
		cfg.BM25.B = rankB
	}
	if cmd.Flags().Changed("k2") {
		cfg.BM25.K2 = rankK2
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err = rankRecords(cmd.Context(), cfg, rankOpts, os.Stdout)
	return err
}

// rankRecords runs the BM25 stage alone and prints the result to out.
func rankRecords(ctx context.Context, cfg *config.Config, opts rankOptions, out io.Writer) (*types.RankingResult, error) {
	logger, err := newLogger(cfg.Log, opts.Verbose)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	posting, err := resolveQuery(ctx, opts.Query)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(posting.Text) == "" {
		return nil, &types.InputError{Field: "query", Message: "must not be empty"}
	}

	records, err := ingestion.LoadRecords(opts.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	docs, err := store.New(records)
	if err != nil {
		return nil, err
	}

	ranker, err := ranking.NewRanker(cfg.RankingOptions(), ranking.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	result := ranker.Rank(posting.Text, docs.Records())

	observability.NewPrinter(out).PrintRanking("BM25 RANKING", result)
	if opts.Out != "" {
		if err := writeJSON(opts.Out, result); err != nil {
			return nil, err
		}
		_, _ = fmt.Fprintf(out, "Ranking written to %s\n", opts.Out)
	}
	return result, nil
}
