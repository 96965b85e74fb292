// Package runstore keeps a history of retrieval runs and their evaluation
// scores in PostgreSQL.
//
// Tables are created on first use:
//
//	CREATE TABLE search_runs (
//	    run_id       TEXT PRIMARY KEY,
//	    model        TEXT NOT NULL,
//	    fingerprint  TEXT NOT NULL,
//	    documents    INTEGER NOT NULL,
//	    vocabulary   INTEGER NOT NULL,
//	    queries      INTEGER NOT NULL,
//	    succeeded    INTEGER NOT NULL,
//	    failed       INTEGER NOT NULL,
//	    path         TEXT NOT NULL,
//	    config       JSONB NOT NULL,
//	    finished_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE run_evaluations (
//	    run_id       TEXT NOT NULL,
//	    query_id     TEXT NOT NULL,
//	    measure      TEXT NOT NULL,
//	    value        DOUBLE PRECISION NOT NULL,
//	    evaluated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (run_id, query_id, measure)
//	);
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/eval"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/cranfield-search/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS search_runs (
		run_id      TEXT PRIMARY KEY,
		model       TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		documents   INTEGER NOT NULL,
		vocabulary  INTEGER NOT NULL,
		queries     INTEGER NOT NULL,
		succeeded   INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		path        TEXT NOT NULL,
		config      JSONB NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS run_evaluations (
		run_id       TEXT NOT NULL,
		query_id     TEXT NOT NULL,
		measure      TEXT NOT NULL,
		value        DOUBLE PRECISION NOT NULL,
		evaluated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, query_id, measure)
	)`,
}

// RunRecord summarises one written run file.
type RunRecord struct {
	RunID       string
	Model       string
	Fingerprint string
	Documents   int
	Vocabulary  int
	Queries     int
	Succeeded   int
	Failed      int
	Path        string
	Config      ranker.Config
	FinishedAt  time.Time
}

// MetricRow is one (query, measure, value) triple of an evaluation.
type MetricRow struct {
	QueryID string
	Measure string
	Value   float64
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating run store schema: %w", err)
		}
	}
	return nil
}

// SaveRun upserts rec keyed by run id, so re-running with the same run id
// replaces the earlier row.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshaling ranking config: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO search_runs
			(run_id, model, fingerprint, documents, vocabulary, queries, succeeded, failed, path, config, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO UPDATE SET
			model = EXCLUDED.model,
			fingerprint = EXCLUDED.fingerprint,
			documents = EXCLUDED.documents,
			vocabulary = EXCLUDED.vocabulary,
			queries = EXCLUDED.queries,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			path = EXCLUDED.path,
			config = EXCLUDED.config,
			finished_at = EXCLUDED.finished_at`,
		rec.RunID, rec.Model, rec.Fingerprint, rec.Documents, rec.Vocabulary,
		rec.Queries, rec.Succeeded, rec.Failed, rec.Path, cfg, rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.RunID, err)
	}
	s.logger.Info("run saved", "run_id", rec.RunID, "succeeded", rec.Succeeded, "failed", rec.Failed)
	return nil
}

// SaveEvaluation replaces all stored measures of report.RunID in one
// transaction.
func (s *Store) SaveEvaluation(ctx context.Context, report eval.Report, evaluatedAt time.Time) error {
	rows := MetricRows(report)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_evaluations WHERE run_id = $1`, report.RunID); err != nil {
			return fmt.Errorf("clearing previous evaluation: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_evaluations (run_id, query_id, measure, value, evaluated_at) VALUES ($1, $2, $3, $4, $5)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, report.RunID, row.QueryID, row.Measure, row.Value, evaluatedAt.UTC()); err != nil {
				return fmt.Errorf("inserting %s/%s: %w", row.QueryID, row.Measure, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving evaluation of %s: %w", report.RunID, err)
	}
	s.logger.Info("evaluation saved", "run_id", report.RunID, "rows", len(rows))
	return nil
}

// LatestMAP returns the stored mean average precision of runID, or false if
// the run has not been evaluated.
func (s *Store) LatestMAP(ctx context.Context, runID string) (float64, bool, error) {
	var value float64
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT value FROM run_evaluations WHERE run_id = $1 AND query_id = 'all' AND measure = $2`,
		runID, eval.MAP,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying map of %s: %w", runID, err)
	}
	return value, true, nil
}

// MetricRows flattens report into per-query and aggregate rows.
func MetricRows(report eval.Report) []MetricRow {
	all := append(append([]eval.QueryMetrics{}, report.Queries...), report.All)
	rows := make([]MetricRow, 0, len(all)*len(eval.Measures))
	for _, m := range all {
		for _, measure := range eval.Measures {
			rows = append(rows, MetricRow{QueryID: m.QueryID, Measure: measure, Value: m.Value(measure)})
		}
	}
	return rows
}
