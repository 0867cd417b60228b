package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/resume-ranker/internal/db"
	"github.com/jonathan/resume-ranker/internal/observability"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect runs stored in the database",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd.Context(), func(database *db.DB) error {
			return listRuns(cmd.Context(), database, runsLimit, os.Stdout)
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the rankings and evaluation of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID format: %w", err)
		}
		return withDatabase(cmd.Context(), func(database *db.DB) error {
			return showRun(cmd.Context(), database, runID, os.Stdout)
		})
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and everything stored with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run ID format: %w", err)
		}
		return withDatabase(cmd.Context(), func(database *db.DB) error {
			if err := database.DeleteRun(cmd.Context(), runID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "Deleted run %s\n", runID)
			return nil
		})
	},
}

var (
	runsDBURL string
	runsLimit int
)

func init() {
	runsCmd.PersistentFlags().StringVar(&runsDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}

func withDatabase(ctx context.Context, fn func(*db.DB) error) error {
	dsn := databaseURL(runsDBURL, nil)
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	return fn(database)
}

func listRuns(ctx context.Context, database *db.DB, limit int, out io.Writer) error {
	runs, err := database.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []db.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSTATE\tSTAGE\tCANDIDATES\tDEGRADED")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.State, r.StageReached, r.Candidates, r.Degraded)
	}
	_ = w.Flush()
}

func showRun(ctx context.Context, database *db.DB, runID uuid.UUID, out io.Writer) error {
	run, err := database.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}
	_, _ = fmt.Fprintf(out, "Run %s\nQuery: %s\nState: %s (stage reached: %s, degraded: %t)\n",
		run.ID, run.Query, run.State, run.StageReached, run.Degraded)

	printer := observability.NewPrinter(out)
	for _, kind := range []string{db.RankingBM25, db.RankingFinal} {
		ranking, err := database.GetRanking(ctx, runID, kind)
		if err != nil {
			return err
		}
		if ranking != nil {
			printer.PrintRanking(strings.ToUpper(kind)+" RANKING", ranking)
		}
	}

	report, err := database.GetEvaluation(ctx, runID)
	if err != nil {
		return err
	}
	if report != nil {
		printer.PrintEvaluation(report)
	}
	return nil
}
