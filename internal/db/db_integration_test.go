//go:build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-ranker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := Connect(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestIntegration_RecordRun(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	rec := &RunRecord{
		ID:           uuid.New(),
		Query:        "Backend engineer, Python, 3 years",
		QueryHash:    "abc",
		State:        "done",
		StageReached: "evaluated",
		Degraded:     true,
		BM25: &types.RankingResult{Stage: types.StageBM25, Candidates: []types.ScoredCandidate{
			{ID: "A", Score: 1.2, Source: types.StageBM25},
			{ID: "C", Score: 1.2, Source: types.StageBM25},
			{ID: "B", Score: 0, Source: types.StageBM25},
		}},
		Final: &types.RankingResult{Stage: types.StageLLM, Candidates: []types.ScoredCandidate{
			{ID: "C", Score: 88, Source: types.StageLLM},
			{ID: "A", Score: 1.2, Source: types.StageBM25},
			{ID: "B", Score: 10, Source: types.StageLLM},
		}},
		Evaluation: &types.EvaluationReport{Evaluable: true, CutoffK: 10, Metrics: map[string]float64{"mrr": 1}},
		Durations:  map[string]time.Duration{"bm25": time.Millisecond},
	}
	defer func() { _ = db.DeleteRun(ctx, rec.ID) }()

	require.NoError(t, db.RecordRun(ctx, rec))
	// recording twice replaces rows
	require.NoError(t, db.RecordRun(ctx, rec))

	run, err := db.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "done", run.State)
	assert.True(t, run.Degraded)
	assert.Equal(t, 3, run.Candidates)
	assert.NotNil(t, run.CompletedAt)

	final, err := db.GetRanking(ctx, rec.ID, RankingFinal)
	require.NoError(t, err)
	assert.Equal(t, rec.Final, final)

	bm25, err := db.GetRanking(ctx, rec.ID, RankingBM25)
	require.NoError(t, err)
	assert.Equal(t, rec.BM25, bm25)

	eval, err := db.GetEvaluation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, eval.Metrics["mrr"])

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestIntegration_MissingRun(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()
	ctx := context.Background()

	run, err := db.GetRun(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, run)

	assert.Error(t, db.DeleteRun(ctx, uuid.New()))
}
