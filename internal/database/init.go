package database

import (
	"context"
	"fmt"

	"github.com/jkdp/printshop-migrate/internal/database/schema"
)

// InitializeDatabase creates the migrator bookkeeping tables if they don't exist
func InitializeDatabase(ctx context.Context, db DBExecutor) error {
	for _, query := range schema.SystemTableDefinitions {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create system table: %w", err)
		}
	}
	return nil
}
