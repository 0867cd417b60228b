package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-ranker/internal/config"
	"github.com/jonathan/resume-ranker/internal/llm"
	"github.com/jonathan/resume-ranker/internal/pipeline"
	"github.com/jonathan/resume-ranker/internal/types"
)

const exampleRecordsJSON = `[
  {"resume_id": "A", "resume_text": "Senior Python backend, 5 years"},
  {"resume_id": "B", "resume_text": "Frontend React developer"},
  {"resume_id": "C", "resume_text": "Python backend intern, 1 year"}
]`

const exampleQuery = "Backend engineer, Python, 3 years"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testConfig returns defaults with logs kept out of the test output.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	cfg := config.Default()
	cfg.Log.Output = filepath.Join(t.TempDir(), "ranker.log")
	cfg.Rerank.InitialBackoff = 1
	cfg.Rerank.MaxBackoff = 1
	return &cfg
}

// MockLLMClient is a function-field mock of llm.Client.
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return m.GenerateJSON(ctx, prompt, tier)
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return m.GenerateJSONFunc(ctx, prompt, tier)
}

func (m *MockLLMClient) GetModel(tier llm.ModelTier) string {
	return "mock-" + string(tier)
}

func (m *MockLLMClient) Close() error {
	return nil
}

func TestResolveQuery(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "job.txt", "Go engineer\n\n\n\nKubernetes")

	posting, err := resolveQuery(context.Background(), querySource{Text: "Python developer"})
	require.NoError(t, err)
	assert.Equal(t, "Python developer", posting.Text)

	posting, err = resolveQuery(context.Background(), querySource{File: file})
	require.NoError(t, err)
	assert.Contains(t, posting.Text, "Kubernetes")

	_, err = resolveQuery(context.Background(), querySource{})
	assert.ErrorContains(t, err, "must be provided")

	_, err = resolveQuery(context.Background(), querySource{Text: "x", URL: "https://example.com"})
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = resolveQuery(context.Background(), querySource{File: filepath.Join(dir, "missing.txt")})
	assert.ErrorContains(t, err, "failed to load job description")
}

func TestRankRecords(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)
	outPath := filepath.Join(dir, "out", "ranking.json")

	var out bytes.Buffer
	result, err := rankRecords(context.Background(), testConfig(t), rankOptions{
		Records: records,
		Query:   querySource{Text: exampleQuery},
		Out:     outPath,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", "B"}, result.IDs())
	assert.Contains(t, out.String(), "BM25 RANKING")
	assert.Contains(t, out.String(), "Ranking written to")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var saved types.RankingResult
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, result.IDs(), saved.IDs())
}

func TestRankRecords_CSV(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.csv", "resume_id,anonResumeText\nA,Senior Python backend 5 years\nB,Frontend React developer\n")

	result, err := rankRecords(context.Background(), testConfig(t), rankOptions{
		Records: records,
		Query:   querySource{Text: "python backend"},
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, result.IDs())
}

func TestRankRecords_InputErrors(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)
	dupes := writeFile(t, dir, "dupes.json", `[{"resume_id": "A", "resume_text": "x"}, {"resume_id": "A", "resume_text": "y"}]`)

	_, err := rankRecords(context.Background(), testConfig(t), rankOptions{
		Records: records,
		Query:   querySource{Text: "   "},
	}, &bytes.Buffer{})
	assert.True(t, types.IsInputError(err))

	_, err = rankRecords(context.Background(), testConfig(t), rankOptions{
		Records: dupes,
		Query:   querySource{Text: exampleQuery},
	}, &bytes.Buffer{})
	assert.True(t, types.IsInputError(err))

	_, err = rankRecords(context.Background(), testConfig(t), rankOptions{
		Records: filepath.Join(dir, "missing.json"),
		Query:   querySource{Text: exampleQuery},
	}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to load records")
}

func TestExecuteRun_WithoutOracleIsDegraded(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)
	opts := runOptions{
		Records:    records,
		Query:      querySource{Text: exampleQuery},
		Out:        filepath.Join(dir, "result.json"),
		XLSX:       filepath.Join(dir, "report"),
		MetricsOut: filepath.Join(dir, "ranker.prom"),
	}

	var out bytes.Buffer
	res, err := executeRun(context.Background(), testConfig(t), nil, opts, &out)
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateDone, res.State)
	assert.Equal(t, []string{"A", "C", "B"}, res.Final.IDs())
	assert.True(t, res.Degraded)
	assert.True(t, res.RerankReport.Unreachable)
	assert.Contains(t, out.String(), "FINAL RANKING")

	data, err := os.ReadFile(opts.Out)
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "done", saved["state"])
	assert.Equal(t, true, saved["degraded"])

	assert.FileExists(t, filepath.Join(dir, "report.xlsx"))

	prom, err := os.ReadFile(opts.MetricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "resume_ranker_rerank_fallbacks_total 3")
}

func TestExecuteRun_WithReference(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)
	ref := writeFile(t, dir, "reference.json", `["A", "C", "B"]`)

	var out bytes.Buffer
	res, err := executeRun(context.Background(), testConfig(t), nil, runOptions{
		Records:   records,
		Query:     querySource{Text: exampleQuery},
		Reference: ref,
		Verbose:   true,
	}, &out)
	require.NoError(t, err)

	require.NotNil(t, res.Evaluation)
	assert.True(t, res.Evaluation.Evaluable)
	assert.InDelta(t, 1.0, res.Evaluation.Metrics[types.MetricSpearman], 1e-9)
	assert.Equal(t, pipeline.StateEvaluated, res.StageReached)
	assert.Contains(t, out.String(), "[evaluated]")
	assert.Contains(t, out.String(), "EVALUATION")
}

func TestExecuteRun_LLMReranks(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)
	cfg := testConfig(t)
	cfg.LLM.Rubric = false

	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			assert.Equal(t, llm.TierLite, tier)
			if strings.Contains(prompt, "React") {
				return `{"score": 95}`, nil
			}
			return "```json\n{\"score\": 10}\n```", nil
		},
	}

	res, err := executeRun(context.Background(), cfg, client, runOptions{
		Records: records,
		Query:   querySource{Text: exampleQuery},
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "B", res.Final.Candidates[0].ID)
	assert.Equal(t, types.StageLLM, res.Final.Stage)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"A", "C", "B"}, res.BM25.IDs())
}

func TestExecuteRun_JudgeRequiresClient(t *testing.T) {
	_, err := executeRun(context.Background(), testConfig(t), nil, runOptions{
		Records: "records.json",
		Query:   querySource{Text: exampleQuery},
		Judge:   true,
	}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "--judge requires an LLM API key")
}

func TestExecuteRun_EmptyQueryFails(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.json", exampleRecordsJSON)

	res, err := executeRun(context.Background(), testConfig(t), nil, runOptions{
		Records: records,
		Query:   querySource{Text: " "},
	}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, types.IsInputError(err))
	assert.Equal(t, pipeline.StateFailed, res.State)
}

func TestEvaluateRanking(t *testing.T) {
	dir := t.TempDir()
	ranking := writeFile(t, dir, "ranking.json", `{"stage": "bm25", "candidates": [
		{"candidate_id": "A", "score": 3},
		{"candidate_id": "B", "score": 2},
		{"candidate_id": "C", "score": 1}
	]}`)
	ref := writeFile(t, dir, "reference.json", `{"format": "graded", "grades": {"A": 90, "B": 20, "C": 60}}`)
	outPath := filepath.Join(dir, "eval.json")

	var out bytes.Buffer
	report, err := evaluateRanking(context.Background(), testConfig(t), evaluateOptions{
		Ranking:   ranking,
		Reference: ref,
		Out:       outPath,
	}, &out)
	require.NoError(t, err)

	assert.True(t, report.Evaluable)
	assert.Equal(t, types.ReferenceGraded, report.Format)
	assert.Equal(t, 1.0, report.Metrics[types.MetricMRR])
	assert.Contains(t, out.String(), "EVALUATION")
	assert.FileExists(t, outPath)
}

func TestEvaluateRanking_DisjointIsReported(t *testing.T) {
	dir := t.TempDir()
	ranking := writeFile(t, dir, "ranking.json", `{"candidates": [{"candidate_id": "A", "score": 1}]}`)
	ref := writeFile(t, dir, "reference.json", `["X", "Y"]`)

	report, err := evaluateRanking(context.Background(), testConfig(t), evaluateOptions{
		Ranking:   ranking,
		Reference: ref,
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, report.Evaluable)
	assert.NotEmpty(t, report.Reason)
}

func TestEvaluateRanking_SourceFlags(t *testing.T) {
	tests := []struct {
		name string
		opts evaluateOptions
		want string
	}{
		{name: "no source", opts: evaluateOptions{Reference: "ref.json"}, want: "either --ranking or --run-id"},
		{name: "both sources", opts: evaluateOptions{Ranking: "r.json", RunID: "x", Reference: "ref.json"}, want: "mutually exclusive"},
		{name: "bad run id", opts: evaluateOptions{RunID: "not-a-uuid", Reference: "ref.json"}, want: "invalid run ID format"},
		{name: "run id without db", opts: evaluateOptions{RunID: "00000000-0000-0000-0000-000000000001", Reference: "ref.json"}, want: "--db-url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluateRanking(context.Background(), testConfig(t), tt.opts, &bytes.Buffer{})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	cfg := config.Default()
	assert.Equal(t, "gemini-key", apiKeyFor(&cfg))

	cfg.LLM.Provider = "openai"
	assert.Equal(t, "openai-key", apiKeyFor(&cfg))

	cfg.LLM.APIKey = "explicit"
	assert.Equal(t, "explicit", apiKeyFor(&cfg))
}

func TestNewLLMClient_NoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := config.Default()
	client, err := newLLMClient(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	cfg := config.Default()

	assert.Equal(t, "postgres://env", databaseURL("", &cfg))
	assert.Equal(t, "postgres://env", databaseURL("", nil))

	cfg.DatabaseURL = "postgres://config"
	assert.Equal(t, "postgres://config", databaseURL("", &cfg))
	assert.Equal(t, "postgres://flag", databaseURL("postgres://flag", &cfg))
}

func TestPrintRuns(t *testing.T) {
	var out bytes.Buffer
	printRuns(&out, nil)
	assert.Equal(t, "No runs found\n", out.String())
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"rank", "run", "evaluate", "runs"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
