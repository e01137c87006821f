package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/undergis/spatialid/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	options    TEXT NOT NULL,
	stats      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	feature_id      TEXT NOT NULL,
	attrs           TEXT,
	coverage        TEXT,
	failure_kind    TEXT,
	failure_message TEXT,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_outcomes_failures
	ON run_outcomes(run_id) WHERE failure_kind IS NOT NULL;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string, opts model.Options) (*model.BatchRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal options")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, options, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusQueued), string(optsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stats = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, options, stats, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	query := `SELECT id, source, status, options, stats, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SaveOutcomes(ctx context.Context, runID string, start int, outcomes []model.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_outcomes (run_id, seq, feature_id, attrs, coverage, failure_kind, failure_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			feature_id = excluded.feature_id,
			attrs = excluded.attrs,
			coverage = excluded.coverage,
			failure_kind = excluded.failure_kind,
			failure_message = excluded.failure_message`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare outcome insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, o := range outcomes {
		row, err := outcomeRow(o)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, start+i, row.featureID,
			row.attrs, row.coverage, row.failureKind, row.failureMessage); err != nil {
			return eris.Wrapf(err, "sqlite: insert outcome %d", start+i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit outcomes")
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string, failuresOnly bool) ([]model.Outcome, error) {
	query := `SELECT feature_id, attrs, coverage, failure_kind, failure_message
		FROM run_outcomes WHERE run_id = ?`
	if failuresOnly {
		query += ` AND failure_kind IS NOT NULL`
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var featureID string
		var attrs, cov, kind, msg sql.NullString
		if err := rows.Scan(&featureID, &attrs, &cov, &kind, &msg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		o, err := buildOutcome(featureID, attrs.String, cov.String, kind.String, msg.String)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list outcomes")
}

// outcomeFields is the serialized form shared by both drivers. NULLs are
// represented as nil pointers so SQL partial indexes on failure_kind work.
type outcomeFields struct {
	featureID      string
	attrs          *string
	coverage       *string
	failureKind    *string
	failureMessage *string
}

func outcomeRow(o model.Outcome) (outcomeFields, error) {
	row := outcomeFields{featureID: o.FeatureID}

	attrs, err := encodeAttrs(o.Attrs)
	if err != nil {
		return row, err
	}
	if attrs != "" {
		row.attrs = &attrs
	}

	cov, err := encodeCoverage(o.Coverage)
	if err != nil {
		return row, err
	}
	if cov != "" {
		row.coverage = &cov
	}

	if o.Failure != nil {
		kind := string(o.Failure.Kind)
		msg := o.Failure.Message
		row.failureKind = &kind
		row.failureMessage = &msg
	}
	return row, nil
}

func buildOutcome(featureID, attrs, cov, kind, msg string) (model.Outcome, error) {
	o := model.Outcome{FeatureID: featureID}

	a, err := decodeAttrs(attrs)
	if err != nil {
		return o, err
	}
	o.Attrs = a

	c, err := decodeCoverage(cov)
	if err != nil {
		return o, err
	}
	o.Coverage = c

	if kind != "" {
		o.Failure = &model.Failure{
			FeatureID: featureID,
			Kind:      model.ErrorKind(kind),
			Message:   msg,
		}
	}
	return o, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.BatchRun, error) {
	var run model.BatchRun
	var status, optsJSON string
	var statsJSON sql.NullString

	err := row.Scan(&run.ID, &run.Source, &status, &optsJSON, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	run.Status = model.RunStatus(status)
	if err := json.Unmarshal([]byte(optsJSON), &run.Options); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal options")
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &run.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}
