// Package db persists ranking runs and their artifacts in PostgreSQL.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/resume-ranker/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RecordRun stores a finished run, its rankings and its artifacts in one transaction.
// Re-recording the same run ID replaces the previous rows.
func (db *DB) RecordRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == uuid.Nil {
		return fmt.Errorf("run record has no ID")
	}

	artifacts, err := rec.artifacts()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO ranking_runs (id, query, query_hash, state, stage_reached, degraded, candidates, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			 ON CONFLICT (id) DO UPDATE SET state = $4, stage_reached = $5, degraded = $6,
			     candidates = $7, completed_at = NOW()`,
			rec.ID, rec.Query, rec.QueryHash, rec.State, rec.StageReached, rec.Degraded, rec.Final.Len(),
		)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM run_candidates WHERE run_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("failed to clear candidates: %w", err)
		}
		for _, ranking := range []struct {
			kind   string
			result *types.RankingResult
		}{{RankingBM25, rec.BM25}, {RankingFinal, rec.Final}} {
			rows := candidateRows(rec.ID, ranking.kind, ranking.result)
			if len(rows) == 0 {
				continue
			}
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"run_candidates"},
				[]string{"run_id", "ranking", "position", "candidate_id", "score", "source"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return fmt.Errorf("failed to save %s ranking: %w", ranking.kind, err)
			}
		}

		for step, content := range artifacts {
			_, err := tx.Exec(ctx,
				`INSERT INTO run_artifacts (run_id, step, content)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (run_id, step) DO UPDATE SET content = $3, created_at = NOW()`,
				rec.ID, step, content,
			)
			if err != nil {
				return fmt.Errorf("failed to save artifact %s: %w", step, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run by ID. A missing run returns nil without error.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, query, query_hash, state, stage_reached, degraded, candidates, created_at, completed_at
		 FROM ranking_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Query, &run.QueryHash, &run.State, &run.StageReached, &run.Degraded,
		&run.Candidates, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, query, query_hash, state, stage_reached, degraded, candidates, created_at, completed_at
		 FROM ranking_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var run Run
		err := row.Scan(&run.ID, &run.Query, &run.QueryHash, &run.State, &run.StageReached, &run.Degraded,
			&run.Candidates, &run.CreatedAt, &run.CompletedAt)
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}
	return runs, nil
}

// GetRanking loads one of a run's stored rankings (RankingBM25 or RankingFinal).
func (db *DB) GetRanking(ctx context.Context, runID uuid.UUID, ranking string) (*types.RankingResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT candidate_id, score, source FROM run_candidates
		 WHERE run_id = $1 AND ranking = $2 ORDER BY position`,
		runID, ranking,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s ranking: %w", ranking, err)
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ScoredCandidate, error) {
		var c types.ScoredCandidate
		var source string
		err := row.Scan(&c.ID, &c.Score, &source)
		c.Source = types.Stage(source)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s ranking: %w", ranking, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	result := &types.RankingResult{Stage: types.StageBM25, Candidates: candidates}
	for _, c := range candidates {
		if c.Source == types.StageLLM {
			result.Stage = types.StageLLM
			break
		}
	}
	return result, nil
}

// GetArtifact retrieves a JSON artifact by run ID and step. A missing artifact returns nil.
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, step string) ([]byte, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM run_artifacts WHERE run_id = $1 AND step = $2`,
		runID, step,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", step, err)
	}
	return content, nil
}

// GetEvaluation loads the evaluation report stored with a run.
func (db *DB) GetEvaluation(ctx context.Context, runID uuid.UUID) (*types.EvaluationReport, error) {
	content, err := db.GetArtifact(ctx, runID, StepEvaluation)
	if err != nil || content == nil {
		return nil, err
	}
	var report types.EvaluationReport
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation: %w", err)
	}
	return &report, nil
}

// DeleteRun deletes a run and all its rows (via cascade)
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM ranking_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}
