package correlation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behaviour every backend shares.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("two writer join", func(t *testing.T) {
		s := newStore(t)
		prior, err := s.FindOrCreate(ctx, "d-join", Fields{PipelineID: "exec-1"})
		require.NoError(t, err)
		require.Nil(t, prior, "first writer must see a fresh record")

		prior, err = s.FindOrCreate(ctx, "d-join", Fields{TaskDef: "api:42"})
		require.NoError(t, err)
		require.NotNil(t, prior)
		require.Equal(t, "exec-1", prior.PipelineID)
		require.Empty(t, prior.TaskDef)

		require.NoError(t, s.Update(ctx, "d-join", Fields{TaskDef: "api:42"}))
		rec, err := s.Get(ctx, "d-join")
		require.NoError(t, err)
		require.Equal(t, &Record{DeploymentID: "d-join", PipelineID: "exec-1", TaskDef: "api:42"}, rec)
	})

	t.Run("find does not overwrite", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindOrCreate(ctx, "d-keep", Fields{PipelineID: "exec-1"})
		require.NoError(t, err)
		prior, err := s.FindOrCreate(ctx, "d-keep", Fields{PipelineID: "exec-2"})
		require.NoError(t, err)
		require.Equal(t, "exec-1", prior.PipelineID)
	})

	t.Run("partial update keeps other field", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindOrCreate(ctx, "d-part", Fields{TaskDef: "api:1"})
		require.NoError(t, err)
		require.NoError(t, s.Update(ctx, "d-part", Fields{PipelineID: "exec-9"}))
		rec, err := s.Get(ctx, "d-part")
		require.NoError(t, err)
		require.Equal(t, "exec-9", rec.PipelineID)
		require.Equal(t, "api:1", rec.TaskDef)
	})

	t.Run("update creates missing record", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Update(ctx, "d-new", Fields{TaskDef: "api:2"}))
		rec, err := s.Get(ctx, "d-new")
		require.NoError(t, err)
		require.Equal(t, "api:2", rec.TaskDef)
		require.Empty(t, rec.PipelineID)
	})

	t.Run("empty update rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, "d-x", Fields{})
		require.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("empty id rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindOrCreate(ctx, " ", Fields{PipelineID: "p"})
		require.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "d-missing")
		require.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("NOTIFIER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NOTIFIER_TEST_POSTGRES_DSN not set")
	}
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(context.Background(), "TRUNCATE deployments")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteMigrate_Idempotent(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate())

	var version int
	require.NoError(t, s.conn.QueryRow("SELECT version FROM schema_version").Scan(&version))
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "correlation.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.FindOrCreate(context.Background(), "d-1", Fields{PipelineID: "exec-1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Get(context.Background(), "d-1")
	require.NoError(t, err)
	require.Equal(t, "exec-1", rec.PipelineID)
}

// ---- Open ----

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory://")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	s.Close()

	s, err = Open(ctx, "SQLITE://"+filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	s.Close()
}

func TestOpen_Invalid(t *testing.T) {
	ctx := context.Background()
	for _, dsn := range []string{"", "   ", "redis://localhost", "no-scheme", "dynamodb://", "sqlite://"} {
		_, err := Open(ctx, dsn)
		require.Error(t, err, dsn)
		require.True(t, errors.Is(err, ErrInvalidInput), dsn)
	}
}

func TestRegisterBackend(t *testing.T) {
	var gotDSN string
	RegisterBackend("Test-Backend", func(_ context.Context, dsn string) (Store, error) {
		gotDSN = dsn
		return NewMemoryStore(), nil
	})
	_, err := Open(context.Background(), "test-backend://x")
	require.NoError(t, err)
	require.Equal(t, "test-backend://x", gotDSN)
}
