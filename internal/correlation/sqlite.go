package correlation

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore keeps records in a local SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.Wrap(ErrInvalidInput, "sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "set journal mode")
		}
	}
	s := &SQLiteStore{conn: conn, path: path}
	if err := s.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

const sqliteSchemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deployments (
    deployment_id TEXT PRIMARY KEY,
    pipeline_id   TEXT,
    task_def      TEXT,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate applies the schema once.
func (s *SQLiteStore) Migrate() error {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqliteSchemaV1); err != nil {
		return errors.Wrap(err, "apply schema v1")
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return errors.Wrap(err, "record schema version")
	}
	return tx.Commit()
}

func (s *SQLiteStore) FindOrCreate(ctx context.Context, id string, fields Fields) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO deployments (deployment_id, pipeline_id, task_def)
		 VALUES (?, ?, ?)
		 ON CONFLICT(deployment_id) DO NOTHING`,
		id, nullString(fields.PipelineID), nullString(fields.TaskDef))
	if err != nil {
		return nil, errors.Wrapf(err, "insert deployment %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	if n == 1 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := checkUpdate(id, fields); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO deployments (deployment_id, pipeline_id, task_def)
		 VALUES (?, ?, ?)
		 ON CONFLICT(deployment_id) DO UPDATE SET
		     pipeline_id = COALESCE(excluded.pipeline_id, deployments.pipeline_id),
		     task_def    = COALESCE(excluded.task_def, deployments.task_def),
		     updated_at  = datetime('now')`,
		id, nullString(fields.PipelineID), nullString(fields.TaskDef))
	if err != nil {
		return errors.Wrapf(err, "update deployment %s", id)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var pipelineID, taskDef sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT pipeline_id, task_def FROM deployments WHERE deployment_id = ?", id,
	).Scan(&pipelineID, &taskDef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get deployment %s", id)
	}
	return &Record{DeploymentID: id, PipelineID: pipelineID.String, TaskDef: taskDef.String}, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
