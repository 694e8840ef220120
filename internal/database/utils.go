package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/lib/pq"
)

// DBExecutor is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// openDB is a variable so tests can swap the driver
var openDB = sql.Open

// GetDSN returns the connection URL for the configured database
func GetDSN(cfg *config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.DBName,
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedactedDSN is GetDSN with the password masked, for logging
func RedactedDSN(cfg *config.DatabaseConfig) string {
	redacted := *cfg
	if redacted.Password != "" {
		redacted.Password = "xxxxx"
	}
	return GetDSN(&redacted)
}

// GetConnectionPoolSettings returns the pool settings for cfg with sane minimums
func GetConnectionPoolSettings(cfg *config.DatabaseConfig) (maxOpen, maxIdle int, maxLifetime time.Duration) {
	maxOpen = cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	maxIdle = cfg.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	return maxOpen, maxIdle, 5 * time.Minute
}

// Connect opens the pool and checks the server is reachable
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := openDB("postgres", GetDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.DBName, err)
	}

	maxOpen, maxIdle, maxLifetime := GetConnectionPoolSettings(cfg)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxLifetime / 2)

	return db, nil
}

// TableExists reports whether a table exists in the current schema
func TableExists(ctx context.Context, db DBExecutor, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

// ColumnType returns the data type of a column, or "" when the column does not exist
func ColumnType(ctx context.Context, db DBExecutor, table, column string) (string, error) {
	var dataType string
	err := db.QueryRowContext(ctx, `
		SELECT data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
		table, column).Scan(&dataType)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to read column %s.%s: %w", table, column, err)
	}
	return dataType, nil
}

// CountRows returns the number of rows in table. The name must come from the schema package.
func CountRows(ctx context.Context, db DBExecutor, table string) (int64, error) {
	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// SchemaLockKey is the advisory lock held by anything that reads the schema
// version and then writes on the strength of it
const SchemaLockKey int64 = 0x7072696e74

// LockSchema takes the schema lock for the rest of the transaction. It blocks
// until a concurrent migration or import commits.
func LockSchema(ctx context.Context, tx DBExecutor) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", SchemaLockKey); err != nil {
		return fmt.Errorf("failed to acquire schema lock: %w", err)
	}
	return nil
}
