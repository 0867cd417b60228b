// Package config provides configuration loading and validation for the ranker.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/resume-ranker/internal/evaluation"
	"github.com/jonathan/resume-ranker/internal/llm"
	"github.com/jonathan/resume-ranker/internal/logging"
	"github.com/jonathan/resume-ranker/internal/ranking"
	"github.com/jonathan/resume-ranker/internal/rerank"
	"github.com/jonathan/resume-ranker/internal/types"
)

// Config is the complete ranker configuration.
type Config struct {
	BM25        BM25Config     `koanf:"bm25"`
	Rerank      RerankConfig   `koanf:"rerank"`
	Eval        EvalConfig     `koanf:"eval"`
	LLM         LLMConfig      `koanf:"llm"`
	Log         logging.Config `koanf:"log"`
	DatabaseURL Secret         `koanf:"database_url"`
}

// BM25Config holds the lexical ranker parameters.
type BM25Config struct {
	K1 float64 `koanf:"k1" validate:"gte=0"`
	B  float64 `koanf:"b" validate:"gte=0,lte=1"`
	// K2 is the query-term saturation; 0 disables it.
	K2 float64 `koanf:"k2" validate:"gte=0"`
}

// RerankConfig holds the LLM reranker window and resilience settings.
type RerankConfig struct {
	WindowK           int           `koanf:"window_k" validate:"gte=0"`
	OracleTimeout     time.Duration `koanf:"oracle_timeout" validate:"gt=0"`
	OracleRetryBudget int           `koanf:"oracle_retry_budget" validate:"gte=1"`
	Concurrency       int           `koanf:"concurrency" validate:"gte=1"`
	BatchSize         int           `koanf:"batch_size" validate:"gte=1"`
	InitialBackoff    time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff        time.Duration `koanf:"max_backoff" validate:"gt=0"`
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	CutoffK            int     `koanf:"cutoff_k" validate:"gte=1"`
	ReferenceFormat    string  `koanf:"reference_format" validate:"oneof=order graded"`
	RelevanceThreshold float64 `koanf:"relevance_threshold"`
}

// LLMConfig selects and tunes the oracle backend.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"omitempty,oneof=gemini openai"`
	// Model overrides the lite-tier model used for per-candidate scoring.
	Model string `koanf:"model"`
	// JudgeModel overrides the advanced-tier model used to build judged references.
	JudgeModel string  `koanf:"judge_model"`
	APIKey     Secret  `koanf:"api_key"`
	BaseURL    string  `koanf:"base_url" validate:"omitempty,url"`
	RateLimit  float64 `koanf:"rate_limit" validate:"gte=0"`
	Burst      int     `koanf:"burst" validate:"gte=0"`
	Rubric     bool    `koanf:"rubric"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	bm25 := ranking.DefaultOptions()
	rr := rerank.DefaultOptions()
	ev := evaluation.DefaultOptions()
	return Config{
		BM25: BM25Config{K1: bm25.K1, B: bm25.B, K2: bm25.K2},
		Rerank: RerankConfig{
			WindowK:           rerank.DefaultWindowK,
			OracleTimeout:     rr.AttemptTimeout,
			OracleRetryBudget: rr.RetryBudget,
			Concurrency:       rr.Concurrency,
			BatchSize:         rr.BatchSize,
			InitialBackoff:    rr.InitialBackoff,
			MaxBackoff:        rr.MaxBackoff,
		},
		Eval: EvalConfig{
			CutoffK:            ev.CutoffK,
			ReferenceFormat:    string(types.ReferenceOrder),
			RelevanceThreshold: ev.RelevanceThreshold,
		},
		LLM: LLMConfig{
			Provider: string(llm.ProviderGemini),
			Rubric:   true,
		},
		Log: logging.DefaultConfig(),
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}
	if c.Rerank.MaxBackoff < c.Rerank.InitialBackoff {
		return fmt.Errorf("config error: 'rerank.max_backoff' must not be below 'rerank.initial_backoff'")
	}
	if c.LLM.Burst == 0 && c.LLM.RateLimit > 0 {
		return fmt.Errorf("config error: 'llm.burst' must be positive when 'llm.rate_limit' is set")
	}
	return nil
}

// RankingOptions converts the bm25 section.
func (c *Config) RankingOptions() ranking.Options {
	return ranking.Options{K1: c.BM25.K1, B: c.BM25.B, K2: c.BM25.K2}
}

// RerankOptions converts the rerank section.
func (c *Config) RerankOptions() rerank.Options {
	return rerank.Options{
		BatchSize:      c.Rerank.BatchSize,
		Concurrency:    c.Rerank.Concurrency,
		AttemptTimeout: c.Rerank.OracleTimeout,
		RetryBudget:    c.Rerank.OracleRetryBudget,
		InitialBackoff: c.Rerank.InitialBackoff,
		MaxBackoff:     c.Rerank.MaxBackoff,
	}
}

// EvaluationOptions converts the eval section.
func (c *Config) EvaluationOptions() evaluation.Options {
	return evaluation.Options{CutoffK: c.Eval.CutoffK, RelevanceThreshold: c.Eval.RelevanceThreshold}
}

// LLMClientConfig builds the client configuration for the configured provider with model
// overrides applied.
func (c *Config) LLMClientConfig() (*llm.Config, error) {
	provider, err := llm.ParseProvider(c.LLM.Provider)
	if err != nil {
		return nil, err
	}
	cfg := llm.DefaultConfigFor(provider)
	cfg.BaseURL = c.LLM.BaseURL
	if c.LLM.Model != "" {
		cfg = cfg.WithModel(llm.TierLite, c.LLM.Model)
	}
	if c.LLM.JudgeModel != "" {
		cfg = cfg.WithModel(llm.TierAdvanced, c.LLM.JudgeModel)
	}
	return cfg, nil
}
