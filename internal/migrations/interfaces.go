package migrations

import (
	"context"
	"database/sql"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// DBExecutor represents a database connection that can execute queries
type DBExecutor = database.DBExecutor

// Migration is one numbered step of the schema history
type Migration interface {
	GetVersion() int
	Description() string
	HasSystemUpdate() bool
	HasTenantUpdate() bool
	UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error
	UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error
}

// Verifier is implemented by migrations that check their own result
// before the transaction commits
type Verifier interface {
	Verify(ctx context.Context, db DBExecutor) error
}

// MigrationManager interface for managing migrations
type MigrationManager interface {
	GetCurrentDBVersion(ctx context.Context, db DBExecutor) (int, bool, error)
	SetCurrentDBVersion(ctx context.Context, db DBExecutor, version int) error
	Plan(ctx context.Context, db *sql.DB, target int) (*Plan, error)
	RunMigrations(ctx context.Context, cfg *config.Config, db *sql.DB, target int) (*RunResult, error)
	Baseline(ctx context.Context, db *sql.DB, version int) error
}

// MigrationRegistry manages registered migrations
type MigrationRegistry interface {
	Register(migration Migration)
	GetMigrations() []Migration
	GetMigration(version int) (Migration, bool)
	LatestVersion() int
}
