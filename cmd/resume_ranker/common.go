package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/resume-ranker/internal/config"
	"github.com/jonathan/resume-ranker/internal/ingestion"
	"github.com/jonathan/resume-ranker/internal/llm"
	"github.com/jonathan/resume-ranker/internal/logging"
)

// querySource names where the job description comes from. Exactly one field may be set.
type querySource struct {
	Text string
	File string
	URL  string
}

// addQueryFlags registers --query, --query-file and --job-url on cmd.
func addQueryFlags(cmd *cobra.Command, q *querySource) {
	cmd.Flags().StringVarP(&q.Text, "query", "q", "", "Job description text")
	cmd.Flags().StringVar(&q.File, "query-file", "", "Path to a job description text file")
	cmd.Flags().StringVar(&q.URL, "job-url", "", "URL to fetch the job description from")
}

// resolveQuery loads the job description from the configured source.
func resolveQuery(ctx context.Context, q querySource) (*ingestion.JobPosting, error) {
	set := 0
	for _, s := range []string{q.Text, q.File, q.URL} {
		if s != "" {
			set++
		}
	}
	if set == 0 {
		return nil, fmt.Errorf("one of --query, --query-file or --job-url must be provided")
	}
	if set > 1 {
		return nil, fmt.Errorf("--query, --query-file and --job-url are mutually exclusive; provide only one")
	}

	switch {
	case q.Text != "":
		return ingestion.NewJobPosting(q.Text, ""), nil
	case q.File != "":
		posting, err := ingestion.LoadJobPosting(q.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load job description: %w", err)
		}
		return posting, nil
	default:
		posting, err := ingestion.FetchJobPosting(ctx, q.URL, ingestion.DefaultFetchOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch job description: %w", err)
		}
		return posting, nil
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg logging.Config, verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg.Level = "debug"
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// apiKeyFor returns the configured API key, falling back to the provider's usual
// environment variable.
func apiKeyFor(cfg *config.Config) string {
	if cfg.LLM.APIKey.IsSet() {
		return cfg.LLM.APIKey.Value()
	}
	if llm.Provider(cfg.LLM.Provider) == llm.ProviderOpenAI {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv("GEMINI_API_KEY")
}

// newLLMClient creates the oracle client. It returns a nil client when no API key is available.
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	key := apiKeyFor(cfg)
	if key == "" {
		return nil, nil
	}
	llmCfg, err := cfg.LLMClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(ctx, llmCfg, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if cfg.LLM.RateLimit > 0 {
		client = llm.NewRateLimitedClient(client, cfg.LLM.RateLimit, cfg.LLM.Burst)
	}
	return client, nil
}

// databaseURL picks the flag value, then the config, then DATABASE_URL.
func databaseURL(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg != nil && cfg.DatabaseURL.IsSet() {
		return cfg.DatabaseURL.Value()
	}
	return os.Getenv("DATABASE_URL")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
