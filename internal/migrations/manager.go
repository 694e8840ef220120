package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/domain"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

const dbVersionKey = "db_version"

// Plan describes what a run would do
type Plan struct {
	CurrentVersion int
	VersionExists  bool
	TargetVersion  int
	LatestVersion  int
	Pending        []Migration
}

// AppliedMigration is a migration executed by RunMigrations
type AppliedMigration struct {
	Version     int
	Description string
	Duration    time.Duration
}

// RunResult summarizes a RunMigrations call
type RunResult struct {
	FromVersion int
	ToVersion   int
	Applied     []AppliedMigration
}

// HistoryEntry is one row of migration_history
type HistoryEntry struct {
	Version     int
	Description string
	AppliedAt   time.Time
	Duration    time.Duration
	Baseline    bool
}

// Manager implements MigrationManager
type Manager struct {
	logger   logger.Logger
	registry MigrationRegistry
	now      func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRegistry replaces the default registry
func WithRegistry(registry MigrationRegistry) ManagerOption {
	return func(m *Manager) {
		m.registry = registry
	}
}

// WithClock replaces time.Now, used for durations
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new migration manager
func NewManager(logger logger.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:   logger,
		registry: DefaultRegistry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LatestVersion returns the highest registered migration version
func (m *Manager) LatestVersion() int {
	return m.registry.LatestVersion()
}

// Bootstrap creates the bookkeeping tables
func (m *Manager) Bootstrap(ctx context.Context, db DBExecutor) error {
	if err := database.InitializeDatabase(ctx, db); err != nil {
		return fmt.Errorf("failed to bootstrap migrator tables: %w", err)
	}
	return nil
}

// GetCurrentDBVersion retrieves the current database version from settings table.
// A database that was never migrated reports version 0 and exists=false.
func (m *Manager) GetCurrentDBVersion(ctx context.Context, db DBExecutor) (int, bool, error) {
	var versionStr string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = 'db_version'").Scan(&versionStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
			// settings does not exist yet
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get current database version: %w", err)
	}

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return 0, false, fmt.Errorf("invalid database version format '%s': %w", versionStr, err)
	}

	return version, true, nil
}

// SetCurrentDBVersion updates the current database version in settings table
func (m *Manager) SetCurrentDBVersion(ctx context.Context, db DBExecutor, version int) error {
	versionStr := strconv.Itoa(version)

	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('db_version', $1)
		ON CONFLICT (key) DO UPDATE SET
			value = $1,
			updated_at = CURRENT_TIMESTAMP
	`, versionStr)
	if err != nil {
		return fmt.Errorf("failed to set database version to %s: %w", versionStr, err)
	}

	m.logger.WithField("version", version).Debug("Database version updated")
	return nil
}

// Plan lists the migrations needed to reach target. A target of 0 means the latest version.
func (m *Manager) Plan(ctx context.Context, db *sql.DB, target int) (*Plan, error) {
	current, exists, err := m.GetCurrentDBVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	return m.plan(current, exists, target)
}

func (m *Manager) plan(current int, exists bool, target int) (*Plan, error) {
	latest := m.LatestVersion()
	if target == 0 {
		target = latest
	}
	if target < 0 || target > latest {
		return nil, fmt.Errorf("target version %d is outside the registered history (latest is %d)", target, latest)
	}
	if target < current {
		return nil, fmt.Errorf("database is at version %d, target %d: %w", current, target, ErrDowngradeNotSupported)
	}

	plan := &Plan{
		CurrentVersion: current,
		VersionExists:  exists,
		TargetVersion:  target,
		LatestVersion:  latest,
	}
	for _, migration := range m.registry.GetMigrations() {
		version := migration.GetVersion()
		if version > current && version <= target {
			plan.Pending = append(plan.Pending, migration)
		}
	}
	return plan, nil
}

// RunMigrations applies every pending migration up to target, one transaction each
func (m *Manager) RunMigrations(ctx context.Context, cfg *config.Config, db *sql.DB, target int) (*RunResult, error) {
	m.logger.Info("Starting migration process")

	if err := m.Bootstrap(ctx, db); err != nil {
		return nil, err
	}

	plan, err := m.Plan(ctx, db, target)
	if err != nil {
		return nil, err
	}

	result := &RunResult{FromVersion: plan.CurrentVersion, ToVersion: plan.CurrentVersion}

	m.logger.WithField("db_version", plan.CurrentVersion).
		WithField("target_version", plan.TargetVersion).
		Info("Version comparison")

	if len(plan.Pending) == 0 {
		m.logger.Info("Database is up to date, no migrations needed")
		return result, nil
	}

	m.logger.WithField("count", len(plan.Pending)).Info("Migrations to execute")

	for _, migration := range plan.Pending {
		duration, err := m.executeMigration(ctx, cfg, db, migration)
		if err != nil {
			return result, &ErrMigrationFailed{
				Version:     migration.GetVersion(),
				Description: migration.Description(),
				Err:         err,
			}
		}
		result.ToVersion = migration.GetVersion()
		result.Applied = append(result.Applied, AppliedMigration{
			Version:     migration.GetVersion(),
			Description: migration.Description(),
			Duration:    duration,
		})
	}

	m.logger.WithField("version", result.ToVersion).Info("Migration process completed successfully")
	return result, nil
}

// executeMigration runs a single migration inside one transaction
func (m *Manager) executeMigration(ctx context.Context, cfg *config.Config, db *sql.DB, migration Migration) (time.Duration, error) {
	version := migration.GetVersion()
	log := m.logger.WithField("version", version).WithField("description", migration.Description())
	log.Info("Applying migration")
	ctx = ContextWithLogger(ctx, log)
	start := m.now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := database.LockSchema(ctx, tx); err != nil {
		return 0, err
	}

	// Another operator may have applied it while we waited for the lock
	current, _, err := m.GetCurrentDBVersion(ctx, tx)
	if err != nil {
		return 0, err
	}
	if current >= version {
		return 0, fmt.Errorf("database already at version %d", current)
	}

	if migration.HasSystemUpdate() {
		log.Debug("Executing system migration")
		if err := migration.UpdateSystem(ctx, cfg, tx); err != nil {
			return 0, fmt.Errorf("system migration failed: %w", err)
		}
	}

	if migration.HasTenantUpdate() {
		businesses, err := m.getAllBusinesses(ctx, tx)
		if err != nil {
			return 0, fmt.Errorf("failed to get businesses: %w", err)
		}

		for i := range businesses {
			business := &businesses[i]
			tenantLog := log.WithField("business", business.ID)
			tenantLog.Debug("Executing tenant migration")

			if err := migration.UpdateTenant(ContextWithLogger(ctx, tenantLog), cfg, business, tx); err != nil {
				return 0, fmt.Errorf("tenant migration failed for business %s: %w", business.ID, err)
			}
		}
		log.WithField("businesses", len(businesses)).Info("Tenant migrations completed")
	}

	if verifier, ok := migration.(Verifier); ok {
		if err := verifier.Verify(ctx, tx); err != nil {
			return 0, err
		}
		log.Debug("Verification passed")
	}

	if err := m.SetCurrentDBVersion(ctx, tx, version); err != nil {
		return 0, err
	}

	duration := m.now().Sub(start)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO migration_history (version, description, duration_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (version) DO UPDATE SET
			description = EXCLUDED.description,
			applied_at = CURRENT_TIMESTAMP,
			duration_ms = EXCLUDED.duration_ms,
			baseline = FALSE
	`, version, migration.Description(), duration.Milliseconds()); err != nil {
		return 0, fmt.Errorf("failed to record migration history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	log.WithField("duration_ms", duration.Milliseconds()).Info("Migration completed successfully")
	return duration, nil
}

// Baseline records version as applied without running anything. It is used
// to adopt a database that was migrated by hand.
func (m *Manager) Baseline(ctx context.Context, db *sql.DB, version int) error {
	if _, ok := m.registry.GetMigration(version); version != 0 && !ok {
		return fmt.Errorf("baseline version %d is outside the registered history (latest is %d)", version, m.LatestVersion())
	}

	if err := m.Bootstrap(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := database.LockSchema(ctx, tx); err != nil {
		return err
	}

	current, _, err := m.GetCurrentDBVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current > version {
		return fmt.Errorf("database is at version %d, baseline %d: %w", current, version, ErrDowngradeNotSupported)
	}

	for _, migration := range m.registry.GetMigrations() {
		if migration.GetVersion() > version {
			break
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO migration_history (version, description, baseline)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (version) DO NOTHING
		`, migration.GetVersion(), migration.Description()); err != nil {
			return fmt.Errorf("failed to record baseline for version %d: %w", migration.GetVersion(), err)
		}
	}

	if err := m.SetCurrentDBVersion(ctx, tx, version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baseline: %w", err)
	}

	m.logger.WithField("version", version).Info("Database baselined")
	return nil
}

// History returns the applied migrations, oldest first
func (m *Manager) History(ctx context.Context, db DBExecutor) ([]HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version, description, applied_at, duration_ms, baseline
		FROM migration_history
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var durationMs int64
		if err := rows.Scan(&entry.Version, &entry.Description, &entry.AppliedAt, &durationMs, &entry.Baseline); err != nil {
			return nil, err
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// getAllBusinesses retrieves all tenants. Rows are fully read before returning
// since the same transaction is reused for the tenant updates.
func (m *Manager) getAllBusinesses(ctx context.Context, db DBExecutor) ([]domain.Business, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id::text, COALESCE(name, ''), COALESCE(code, ''), created_at
		FROM businesses
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var businesses []domain.Business
	for rows.Next() {
		var business domain.Business
		var createdAt sql.NullTime
		if err := rows.Scan(&business.ID, &business.Name, &business.Code, &createdAt); err != nil {
			return nil, err
		}
		business.CreatedAt = createdAt.Time
		businesses = append(businesses, business)
	}

	return businesses, rows.Err()
}
