package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
)

// Environment read by the integration tests. Without a host they are skipped.
const (
	EnvTestDBHost     = "PRINTSHOP_TEST_DB_HOST"
	EnvTestDBPort     = "PRINTSHOP_TEST_DB_PORT"
	EnvTestDBUser     = "PRINTSHOP_TEST_DB_USER"
	EnvTestDBPassword = "PRINTSHOP_TEST_DB_PASSWORD"
)

// DatabaseManager manages the lifecycle of a throwaway test database
type DatabaseManager struct {
	config   config.DatabaseConfig
	systemDB *sql.DB
	created  bool
}

// NewDatabaseManager reads the server settings from the environment and
// picks a unique database name
func NewDatabaseManager() *DatabaseManager {
	port, err := strconv.Atoi(getEnvOrDefault(EnvTestDBPort, "5432"))
	if err != nil {
		port = 5432
	}

	return &DatabaseManager{
		config: config.DatabaseConfig{
			Host:         os.Getenv(EnvTestDBHost),
			Port:         port,
			User:         getEnvOrDefault(EnvTestDBUser, "postgres"),
			Password:     os.Getenv(EnvTestDBPassword),
			DBName:       fmt.Sprintf("printshop_test_%d", time.Now().UnixNano()),
			SSLMode:      "disable",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
	}
}

// Setup connects to the server's maintenance database and creates the test database
func (dm *DatabaseManager) Setup(ctx context.Context) error {
	if dm.created {
		return nil
	}

	system := dm.config
	system.DBName = "postgres"

	var err error
	dm.systemDB, err = sql.Open("postgres", database.GetDSN(&system))
	if err != nil {
		return fmt.Errorf("failed to open system connection: %w", err)
	}
	if err := dm.WaitForDatabase(ctx, 10); err != nil {
		return err
	}

	if _, err := dm.systemDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dm.config.DBName)); err != nil {
		return fmt.Errorf("failed to create test database: %w", err)
	}
	dm.created = true
	return nil
}

// Config returns the settings of the test database
func (dm *DatabaseManager) Config() config.DatabaseConfig {
	return dm.config
}

// Cleanup drops the test database. Pools connected to it must be closed first.
func (dm *DatabaseManager) Cleanup(ctx context.Context) error {
	if dm.systemDB == nil {
		return nil
	}
	defer func() {
		_ = dm.systemDB.Close()
	}()

	if !dm.created {
		return nil
	}
	if _, err := dm.systemDB.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dm.config.DBName)); err != nil {
		return fmt.Errorf("failed to drop test database: %w", err)
	}
	dm.created = false
	return nil
}

// WaitForDatabase pings the server until it answers
func (dm *DatabaseManager) WaitForDatabase(ctx context.Context, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = dm.systemDB.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("database not ready after %d retries: %w", maxRetries, err)
}

// SkipUnlessDatabase skips integration tests in short mode or when no server is configured
func SkipUnlessDatabase(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv(EnvTestDBHost) == "" {
		t.Skipf("Skipping integration test, %s is not set", EnvTestDBHost)
	}
}

// SetupTestDatabase creates a test database that is dropped when the test ends
func SetupTestDatabase(t *testing.T) config.DatabaseConfig {
	t.Helper()
	SkipUnlessDatabase(t)

	dm := NewDatabaseManager()
	t.Cleanup(func() {
		if err := dm.Cleanup(context.Background()); err != nil {
			t.Logf("Warning: %v", err)
		}
	})
	require.NoError(t, dm.Setup(context.Background()))
	return dm.Config()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
