package migrations

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/domain"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

const versionQuery = "SELECT value FROM settings WHERE key = 'db_version'"

// fakeClock advances by step on every call
func fakeClock(step time.Duration) func() time.Time {
	current := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func newTestManager(t *testing.T, migrations ...Migration) *Manager {
	registry := NewRegistry()
	for _, m := range migrations {
		registry.Register(m)
	}
	return NewManager(logger.NewTestLogger(t), WithRegistry(registry), WithClock(fakeClock(150*time.Millisecond)))
}

func expectBootstrap(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migration_history").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectVersion(mock sqlmock.Sqlmock, version string) {
	if version == "" {
		mock.ExpectQuery(versionQuery).WillReturnError(sql.ErrNoRows)
		return
	}
	mock.ExpectQuery(versionQuery).WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(version))
}

func expectLockedTx(mock sqlmock.Sqlmock, version string) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(database.SchemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectVersion(mock, version)
}

func expectRecorded(mock sqlmock.Sqlmock, version int, description string) {
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(strconv.Itoa(version)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO migration_history").
		WithArgs(version, description, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestNewManager(t *testing.T) {
	log := logger.NewTestLogger(t)
	manager := NewManager(log)

	assert.NotNil(t, manager)
	assert.Equal(t, log, manager.logger)
	assert.Equal(t, DefaultRegistry, manager.registry)
	assert.Equal(t, 9, manager.LatestVersion())
}

func TestManager_GetCurrentDBVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("stored version", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectVersion(mock, "4")

		version, exists, err := newTestManager(t).GetCurrentDBVersion(ctx, db)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, 4, version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row means never migrated", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectVersion(mock, "")

		version, exists, err := newTestManager(t).GetCurrentDBVersion(ctx, db)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Equal(t, 0, version)
	})

	t.Run("missing settings table means never migrated", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(versionQuery).WillReturnError(&pq.Error{Code: "42P01", Message: `relation "settings" does not exist`})

		version, exists, err := newTestManager(t).GetCurrentDBVersion(ctx, db)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Equal(t, 0, version)
	})

	t.Run("query error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(versionQuery).WillReturnError(errors.New("database error"))

		_, _, err = newTestManager(t).GetCurrentDBVersion(ctx, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get current database version")
	})

	t.Run("invalid format", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectVersion(mock, "4.0")

		_, exists, err := newTestManager(t).GetCurrentDBVersion(ctx, db)
		require.Error(t, err)
		assert.False(t, exists)
		assert.Contains(t, err.Error(), "invalid database version format")
	})
}

func TestManager_SetCurrentDBVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO settings \\(key, value\\) VALUES \\('db_version', \\$1\\) ON CONFLICT").
		WithArgs("6").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = newTestManager(t).SetCurrentDBVersion(context.Background(), db, 6)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Plan(t *testing.T) {
	m1 := &mockMigration{version: 1, hasSystemUpdate: true}
	m2 := &mockMigration{version: 2, hasSystemUpdate: true}
	m3 := &mockMigration{version: 3, hasTenantUpdate: true}
	manager := newTestManager(t, m1, m2, m3)

	tests := []struct {
		name     string
		current  int
		target   int
		pending  []int
		resolved int
		wantErr  error
	}{
		{name: "fresh database to latest", current: 0, target: 0, pending: []int{1, 2, 3}, resolved: 3},
		{name: "partial target", current: 0, target: 2, pending: []int{1, 2}, resolved: 2},
		{name: "resume", current: 1, target: 0, pending: []int{2, 3}, resolved: 3},
		{name: "up to date", current: 3, target: 0, pending: nil, resolved: 3},
		{name: "target equals current", current: 2, target: 2, pending: nil, resolved: 2},
		{name: "downgrade", current: 3, target: 1, wantErr: ErrDowngradeNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := manager.plan(tt.current, tt.current > 0, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var versions []int
			for _, m := range plan.Pending {
				versions = append(versions, m.GetVersion())
			}
			assert.Equal(t, tt.pending, versions)
			assert.Equal(t, tt.resolved, plan.TargetVersion)
			assert.Equal(t, 3, plan.LatestVersion)
		})
	}

	t.Run("target beyond history", func(t *testing.T) {
		_, err := manager.plan(0, false, 4)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside the registered history")
	})

	t.Run("reads version from database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectVersion(mock, "2")

		plan, err := manager.Plan(context.Background(), db, 0)
		require.NoError(t, err)
		assert.True(t, plan.VersionExists)
		assert.Equal(t, 2, plan.CurrentVersion)
		require.Len(t, plan.Pending, 1)
		assert.Equal(t, 3, plan.Pending[0].GetVersion())
	})
}

func TestManager_RunMigrations(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}

	t.Run("applies pending migrations in order", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		m1 := &mockMigration{
			version:         1,
			description:     "create demo",
			hasSystemUpdate: true,
			systemFn: func(ctx context.Context, db DBExecutor) error {
				_, err := db.ExecContext(ctx, "CREATE TABLE demo (id TEXT)")
				return err
			},
		}
		m2 := &verifyingMigration{mockMigration: mockMigration{
			version:         2,
			description:     "tenant backfill",
			hasTenantUpdate: true,
		}}
		manager := newTestManager(t, m1, m2)

		expectBootstrap(mock)
		expectVersion(mock, "")

		expectLockedTx(mock, "")
		mock.ExpectExec("CREATE TABLE demo").WillReturnResult(sqlmock.NewResult(0, 0))
		expectRecorded(mock, 1, "create demo")

		expectLockedTx(mock, "1")
		mock.ExpectQuery(`SELECT id::text, COALESCE\(name, ''\), COALESCE\(code, ''\), created_at FROM businesses`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "created_at"}).
				AddRow("biz-a", "Alpha Print", "AP", time.Now()).
				AddRow("biz-b", "Beta Signs", "", nil))
		expectRecorded(mock, 2, "tenant backfill")

		result, err := manager.RunMigrations(ctx, cfg, db, 0)
		require.NoError(t, err)

		assert.Equal(t, 0, result.FromVersion)
		assert.Equal(t, 2, result.ToVersion)
		require.Len(t, result.Applied, 2)
		assert.Equal(t, 1, result.Applied[0].Version)
		assert.Equal(t, 150*time.Millisecond, result.Applied[0].Duration)
		assert.Equal(t, []string{"biz-a", "biz-b"}, m2.tenants)
		assert.True(t, m2.verified)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to do", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		manager := newTestManager(t, &mockMigration{version: 1, hasSystemUpdate: true})

		expectBootstrap(mock)
		expectVersion(mock, "1")

		result, err := manager.RunMigrations(ctx, cfg, db, 0)
		require.NoError(t, err)
		assert.Empty(t, result.Applied)
		assert.Equal(t, 1, result.ToVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops and rolls back on failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		m1 := &mockMigration{version: 1, description: "first", hasSystemUpdate: true}
		m2 := &mockMigration{
			version:         2,
			description:     "second",
			hasTenantUpdate: true,
			tenantFn: func(ctx context.Context, business *domain.Business, db DBExecutor) error {
				return errors.New("duplicate key")
			},
		}
		m3 := &mockMigration{version: 3, hasSystemUpdate: true}
		manager := newTestManager(t, m1, m2, m3)

		expectBootstrap(mock)
		expectVersion(mock, "")

		expectLockedTx(mock, "")
		expectRecorded(mock, 1, "first")

		expectLockedTx(mock, "1")
		mock.ExpectQuery("FROM businesses").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "created_at"}).
				AddRow("biz-a", "Alpha", "", time.Now()))
		mock.ExpectRollback()

		result, err := manager.RunMigrations(ctx, cfg, db, 0)
		require.Error(t, err)

		var migrationErr *ErrMigrationFailed
		require.ErrorAs(t, err, &migrationErr)
		assert.Equal(t, 2, migrationErr.Version)
		assert.Contains(t, err.Error(), "tenant migration failed for business biz-a")
		assert.Equal(t, 1, result.ToVersion)
		assert.Len(t, result.Applied, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("verification failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		m1 := &verifyingMigration{
			mockMigration: mockMigration{version: 1, hasSystemUpdate: true},
			verifyErr:     &ErrVerificationFailed{Check: "no orphans", Expected: 0, Actual: 2},
		}
		manager := newTestManager(t, m1)

		expectBootstrap(mock)
		expectVersion(mock, "")
		expectLockedTx(mock, "")
		mock.ExpectRollback()

		_, err = manager.RunMigrations(ctx, cfg, db, 0)
		var verr *ErrVerificationFailed
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, int64(2), verr.Actual)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applied concurrently by another run", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		manager := newTestManager(t, &mockMigration{version: 1, hasSystemUpdate: true})

		expectBootstrap(mock)
		expectVersion(mock, "")
		expectLockedTx(mock, "1")
		mock.ExpectRollback()

		_, err = manager.RunMigrations(ctx, cfg, db, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database already at version 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("downgrade refused", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		manager := newTestManager(t, &mockMigration{version: 1, hasSystemUpdate: true}, &mockMigration{version: 2, hasSystemUpdate: true})

		expectBootstrap(mock)
		expectVersion(mock, "2")

		_, err = manager.RunMigrations(ctx, cfg, db, 1)
		assert.ErrorIs(t, err, ErrDowngradeNotSupported)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bootstrap failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnError(errors.New("permission denied"))

		_, err = newTestManager(t).RunMigrations(ctx, cfg, db, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to bootstrap migrator tables")
	})
}

func TestManager_Baseline(t *testing.T) {
	ctx := context.Background()
	m1 := &mockMigration{version: 1, description: "first", hasSystemUpdate: true}
	m2 := &mockMigration{version: 2, description: "second", hasSystemUpdate: true}
	m3 := &mockMigration{version: 3, description: "third", hasSystemUpdate: true}

	t.Run("records history without running migrations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		manager := newTestManager(t, m1, m2, m3)

		expectBootstrap(mock)
		expectLockedTx(mock, "")
		mock.ExpectExec("INSERT INTO migration_history .* VALUES \\(\\$1, \\$2, TRUE\\)").
			WithArgs(1, "first").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO migration_history").
			WithArgs(2, "second").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO settings").WithArgs("2").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, manager.Baseline(ctx, db, 2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refuses to move backwards", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		manager := newTestManager(t, m1, m2, m3)

		expectBootstrap(mock)
		expectLockedTx(mock, "3")
		mock.ExpectRollback()

		err = manager.Baseline(ctx, db, 1)
		assert.ErrorIs(t, err, ErrDowngradeNotSupported)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown version", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		err = newTestManager(t, m1).Baseline(ctx, db, 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside the registered history")
	})

	t.Run("negative version", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		err = newTestManager(t, m1).Baseline(ctx, db, -1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outside the registered history")
	})
}

func TestManager_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appliedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT version, description, applied_at, duration_ms, baseline FROM migration_history ORDER BY version").
		WillReturnRows(sqlmock.NewRows([]string{"version", "description", "applied_at", "duration_ms", "baseline"}).
			AddRow(1, "first", appliedAt, 0, true).
			AddRow(2, "second", appliedAt, 1250, false))

	entries, err := newTestManager(t).History(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Baseline)
	assert.Equal(t, 1250*time.Millisecond, entries[1].Duration)
	assert.Equal(t, "second", entries[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
