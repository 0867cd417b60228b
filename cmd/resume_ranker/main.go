// Package main provides the resume_ranker command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "resume_ranker",
	Short: "Rank resumes against a job description",
	Long: `resume_ranker scores parsed resume records against a job description with BM25,
reranks the top candidates with an LLM and evaluates the result against a reference ordering.

Settings are read from an optional YAML/JSON config file and RANKER_* environment variables.
Command-line flags override both.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
