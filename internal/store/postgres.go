package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/undergis/spatialid/internal/db"
	"github.com/undergis/spatialid/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, source, status, options, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"finish_run":        `UPDATE runs SET stats = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, source, status, options, stats, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	options    JSONB NOT NULL,
	stats      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	feature_id      TEXT NOT NULL,
	attrs           JSONB,
	coverage        JSONB,
	failure_kind    TEXT,
	failure_message TEXT,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_failures
	ON run_outcomes(run_id) WHERE failure_kind IS NOT NULL;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string, opts model.Options) (*model.BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal options")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, options, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, source, string(model.RunStatusQueued), string(optsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.BatchRun{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusQueued,
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, status = $2, updated_at = $3 WHERE id = $4`,
		string(statsJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, status, options, stats, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	query := `SELECT id, source, status, options, stats, created_at, updated_at FROM runs`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += placeholderClause(" LIMIT", len(args)+1)
	args = append(args, limit)
	if filter.Offset > 0 {
		query += placeholderClause(" OFFSET", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

// SaveOutcomes bulk-upserts an outcome chunk; re-saving a chunk after a
// retry overwrites rather than duplicates.
func (s *PostgresStore) SaveOutcomes(ctx context.Context, runID string, start int, outcomes []model.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	rows := make([][]any, len(outcomes))
	for i, o := range outcomes {
		row, err := outcomeRow(o)
		if err != nil {
			return err
		}
		rows[i] = []any{runID, start + i, row.featureID, row.attrs, row.coverage, row.failureKind, row.failureMessage}
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "run_outcomes",
		Columns:      []string{"run_id", "seq", "feature_id", "attrs", "coverage", "failure_kind", "failure_message"},
		ConflictKeys: []string{"run_id", "seq"},
	}, rows)
	return err
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, runID string, failuresOnly bool) ([]model.Outcome, error) {
	query := `SELECT feature_id, attrs, coverage, failure_kind, failure_message
		FROM run_outcomes WHERE run_id = $1`
	if failuresOnly {
		query += ` AND failure_kind IS NOT NULL`
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var featureID string
		var attrs, cov, kind, msg *string
		if err := rows.Scan(&featureID, &attrs, &cov, &kind, &msg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o, err := buildOutcome(featureID, deref(attrs), deref(cov), deref(kind), deref(msg))
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes")
}

func scanPgRun(row pgx.Row) (*model.BatchRun, error) {
	var run model.BatchRun
	var status, optsJSON string
	var statsJSON *string

	err := row.Scan(&run.ID, &run.Source, &status, &optsJSON, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	run.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(optsJSON), &run.Options); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal options")
	}
	if statsJSON != nil && *statsJSON != "" {
		if err := json.Unmarshal([]byte(*statsJSON), &run.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &run, nil
}

func placeholderClause(keyword string, n int) string {
	return keyword + " $" + strconv.Itoa(n)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
