package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/importer"
	"github.com/jkdp/printshop-migrate/internal/migrations"
	"github.com/jkdp/printshop-migrate/internal/verify"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

//go:generate mockgen -destination=./mocks/mock_app.go -package=mocks github.com/jkdp/printshop-migrate/internal/app AppInterface

// AppInterface defines the operations exposed to the command line
type AppInterface interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	Migrate(ctx context.Context, target int) (*migrations.RunResult, error)
	Status(ctx context.Context) (*Status, error)
	Baseline(ctx context.Context, version int) error
	Import(ctx context.Context, source string) (*importer.Result, error)
	Verify(ctx context.Context) (*verify.Report, error)

	GetConfig() *config.Config
	GetLogger() logger.Logger
	GetDB() *sql.DB
}

// Status is the migration state of the database
type Status struct {
	Plan    *migrations.Plan
	History []migrations.HistoryEntry
}

// App encapsulates the application dependencies and configuration
type App struct {
	config *config.Config
	logger logger.Logger
	db     *sql.DB

	migrationManager  *migrations.Manager
	s3Factory         importer.S3ClientFactory
	verifyConcurrency int
}

// AppOption defines a functional option for configuring the App
type AppOption func(*App)

// WithMockDB configures the app to use a mock database
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

// WithLogger sets a custom logger
func WithLogger(logger logger.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithS3ClientFactory replaces the client used for s3:// import sources
func WithS3ClientFactory(factory importer.S3ClientFactory) AppOption {
	return func(a *App) {
		a.s3Factory = factory
	}
}

// WithVerifyConcurrency bounds the number of verification checks run at once
func WithVerifyConcurrency(n int) AppOption {
	return func(a *App) {
		a.verifyConcurrency = n
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) AppInterface {
	app := &App{
		config:    cfg,
		logger:    logger.NewLoggerWithLevel(cfg.LogLevel),
		s3Factory: importer.NewS3Client,
	}

	for _, opt := range opts {
		opt(app)
	}

	app.migrationManager = migrations.NewManager(app.logger)
	return app
}

// Initialize opens the database pool unless one was injected
func (a *App) Initialize(ctx context.Context) error {
	a.logger.WithField("version", a.config.Version).Debug("Starting printshop-migrate")
	return a.InitDB(ctx)
}

// InitDB initializes the database connection
func (a *App) InitDB(ctx context.Context) error {
	if a.db != nil {
		return nil
	}

	a.logger.WithField("dsn", database.RedactedDSN(&a.config.Database)).Info("Connecting to database")

	db, err := database.Connect(ctx, &a.config.Database)
	if err != nil {
		return err
	}

	a.db = db
	return nil
}

// Shutdown releases the pool
func (a *App) Shutdown(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	a.logger.Debug("Database connection closed")
	return nil
}

// Migrate applies pending migrations up to target, 0 meaning the latest version
func (a *App) Migrate(ctx context.Context, target int) (*migrations.RunResult, error) {
	return a.migrationManager.RunMigrations(ctx, a.config, a.db, target)
}

// Status reports the current version, pending migrations and history
func (a *App) Status(ctx context.Context) (*Status, error) {
	plan, err := a.migrationManager.Plan(ctx, a.db, 0)
	if err != nil {
		return nil, err
	}

	status := &Status{Plan: plan}
	if !plan.VersionExists {
		return status, nil
	}

	history, err := a.migrationManager.History(ctx, a.db)
	if err != nil {
		return nil, err
	}
	status.History = history
	return status, nil
}

// Baseline records version as applied without running migrations
func (a *App) Baseline(ctx context.Context, version int) error {
	return a.migrationManager.Baseline(ctx, a.db, version)
}

// Import loads a document-store export into the legacy tables
func (a *App) Import(ctx context.Context, source string) (*importer.Result, error) {
	src, err := importer.NewSource(source, a.config.Import, a.s3Factory)
	if err != nil {
		return nil, err
	}
	return importer.NewImporter(a.db, a.migrationManager, a.logger).Import(ctx, src)
}

// Verify runs the verification catalogue. The database must be at the latest version.
func (a *App) Verify(ctx context.Context) (*verify.Report, error) {
	current, _, err := a.migrationManager.GetCurrentDBVersion(ctx, a.db)
	if err != nil {
		return nil, err
	}
	if latest := a.migrationManager.LatestVersion(); current != latest {
		return nil, fmt.Errorf("database is at version %d, verification needs version %d", current, latest)
	}

	runner := verify.NewRunner(a.db, a.logger, verify.WithConcurrency(a.verifyConcurrency))
	return runner.Run(ctx, verify.Catalogue())
}

// GetConfig returns the app's configuration
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetLogger returns the app's logger
func (a *App) GetLogger() logger.Logger {
	return a.logger
}

// GetDB returns the app's database connection
func (a *App) GetDB() *sql.DB {
	return a.db
}
