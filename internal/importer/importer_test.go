package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

type fixedVersion struct {
	version int
	err     error
}

func (f fixedVersion) GetCurrentDBVersion(ctx context.Context, db database.DBExecutor) (int, bool, error) {
	return f.version, f.version > 0, f.err
}

// settingsVersion reads the version through whatever executor it is handed
type settingsVersion struct{}

func (settingsVersion) GetCurrentDBVersion(ctx context.Context, db database.DBExecutor) (int, bool, error) {
	var version int
	if err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'db_version'").Scan(&version); err != nil {
		return 0, false, err
	}
	return version, true, nil
}

func expectLockedTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(database.SchemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

type stringSource string

func (s stringSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func (s stringSource) String() string {
	return "inline"
}

const sampleExport = `{
	"businesses": {
		"biz1": {"name": "JK Digital Print", "code": "jkdp", "createdAt": "2022-01-10T09:00:00Z"}
	},
	"customers": {
		"cus1": {"businessId": "biz1", "name": "Alice", "email": "ALICE@example.com", "createdAt": 1641805200000},
		"cus2": {"businessId": "biz1", "name": "Bob", "email": "bob at example", "createdAt": {"_seconds": 1641805200, "_nanoseconds": 0}}
	},
	"legacyAudit": {"a1": {}}
}`

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts documents at v1", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		created := time.Date(2022, 1, 10, 9, 0, 0, 0, time.UTC)

		expectLockedTx(mock)
		mock.ExpectExec(`INSERT INTO businesses \(id,name,code,email,phone,address,settings,created_at\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) ON CONFLICT \(id\) DO NOTHING`).
			WithArgs("biz1", "JK Digital Print", "jkdp", nil, nil, nil, nil, created).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO customers \(id,business_id,name,email,phone,company,address,notes,created_at\) VALUES`).
			WithArgs(
				"cus1", "biz1", "Alice", "alice@example.com", nil, nil, nil, nil, created,
				"cus2", "biz1", "Bob", nil, nil, nil, nil, nil, created,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		importer := NewImporter(db, fixedVersion{version: 1}, logger.NewTestLogger(t))
		result, err := importer.Import(ctx, stringSource(sampleExport))
		require.NoError(t, err)

		assert.Equal(t, 2, result.Inserted())
		assert.Equal(t, 1, result.InvalidValues())
		assert.Equal(t, []string{"legacyAudit"}, result.Unknown)

		require.Len(t, result.Collections, 10)
		customers := result.Collections[1]
		assert.Equal(t, "customers", customers.Table)
		assert.Equal(t, 2, customers.Documents)
		assert.Equal(t, 1, customers.Inserted)
		assert.Equal(t, 1, customers.Skipped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fills legacy_id at v2", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectExec(`INSERT INTO businesses \(id,name,code,email,phone,address,settings,created_at,legacy_id\) ` +
			`VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,COALESCE\(\$8::timestamptz, now\(\)\),\$9\)`).
			WithArgs("biz1", "JKDP", nil, nil, nil, nil, nil, nil, "biz1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		importer := NewImporter(db, fixedVersion{version: 2}, logger.NewTestLogger(t))
		result, err := importer.Import(ctx, stringSource(`{"businesses": {"biz1": {"name": "JKDP"}}}`))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refused after identifier conversion", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectRollback()

		importer := NewImporter(db, fixedVersion{version: 3}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))

		var notAllowed *ErrImportNotAllowed
		require.ErrorAs(t, err, &notAllowed)
		assert.Equal(t, 3, notAllowed.DBVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires legacy tables", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectRollback()

		importer := NewImporter(db, fixedVersion{}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrate to v1 first")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectExec(`INSERT INTO businesses`).WillReturnError(errors.New("value too long"))
		mock.ExpectRollback()

		importer := NewImporter(db, fixedVersion{version: 1}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to import businesses")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version lookup failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectRollback()

		importer := NewImporter(db, fixedVersion{err: errors.New("connection reset")}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))
		assert.EqualError(t, err, "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version is read under the schema lock", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectLockedTx(mock)
		mock.ExpectQuery(`SELECT value FROM settings`).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(3))
		mock.ExpectRollback()

		importer := NewImporter(db, settingsVersion{}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))

		var notAllowed *ErrImportNotAllowed
		require.ErrorAs(t, err, &notAllowed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(errors.New("canceling statement due to lock timeout"))
		mock.ExpectRollback()

		importer := NewImporter(db, fixedVersion{version: 1}, logger.NewTestLogger(t))
		_, err = importer.Import(ctx, stringSource(sampleExport))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to acquire schema lock")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
