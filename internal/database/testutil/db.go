// Package testutil holds sqlmock helpers shared by the package tests
package testutil

import (
	"database/sql"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SetupMockDB creates a mock database. When the test ends the database is
// closed and every expectation must have been met.
func SetupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return db, mock
}

// QueryPattern turns a literal SQL statement into a pattern for sqlmock's
// regexp matcher. Runs of whitespace match any whitespace.
func QueryPattern(query string) string {
	parts := strings.Fields(query)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}

// CountRows is the result of a single COUNT(*) query
func CountRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}
