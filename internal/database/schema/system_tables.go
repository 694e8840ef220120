package schema

// SystemTableDefinitions are created before any migration runs.
// They hold migrator bookkeeping only, never business data.
var SystemTableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS migration_history (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		baseline BOOLEAN NOT NULL DEFAULT FALSE
	)`,
}

// SystemTableNames returns the bookkeeping tables in creation order
var SystemTableNames = []string{
	"settings",
	"migration_history",
}
