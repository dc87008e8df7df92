package correlation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const postgresTimeout = 5 * time.Second

// PostgresStore keeps records in a Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the deployments table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.Wrap(ErrInvalidInput, "postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deployments (
			deployment_id TEXT PRIMARY KEY,
			pipeline_id   TEXT,
			task_def      TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return errors.Wrap(err, "create deployments table")
}

func (s *PostgresStore) FindOrCreate(ctx context.Context, id string, fields Fields) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deployments (deployment_id, pipeline_id, task_def)
		VALUES ($1, $2, $3)
		ON CONFLICT (deployment_id) DO NOTHING`,
		id, nullable(fields.PipelineID), nullable(fields.TaskDef))
	if err != nil {
		return nil, errors.Wrapf(err, "insert deployment %s", id)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := checkUpdate(id, fields); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deployments (deployment_id, pipeline_id, task_def)
		VALUES ($1, $2, $3)
		ON CONFLICT (deployment_id) DO UPDATE SET
			pipeline_id = COALESCE(EXCLUDED.pipeline_id, deployments.pipeline_id),
			task_def    = COALESCE(EXCLUDED.task_def, deployments.task_def),
			updated_at  = NOW()`,
		id, nullable(fields.PipelineID), nullable(fields.TaskDef))
	return errors.Wrapf(err, "update deployment %s", id)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresTimeout)
	defer cancel()
	var pipelineID, taskDef *string
	err := s.pool.QueryRow(ctx,
		"SELECT pipeline_id, task_def FROM deployments WHERE deployment_id = $1", id,
	).Scan(&pipelineID, &taskDef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get deployment %s", id)
	}
	rec := &Record{DeploymentID: id}
	if pipelineID != nil {
		rec.PipelineID = *pipelineID
	}
	if taskDef != nil {
		rec.TaskDef = *taskDef
	}
	return rec, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
