package migrations

import (
	"context"

	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V1Migration creates the legacy tables a document-store export is imported into
type V1Migration struct{}

func (m *V1Migration) GetVersion() int {
	return 1
}

func (m *V1Migration) Description() string {
	return "legacy import tables"
}

func (m *V1Migration) HasSystemUpdate() bool {
	return true
}

func (m *V1Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem creates one text-keyed table per export collection
func (m *V1Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	steps := make([]step, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		steps = append(steps, step{
			name:  "create " + table.Name,
			query: schema.LegacyTableDefinitions[table.Name],
		})
	}
	return execSteps(ctx, db, steps)
}

func (m *V1Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every legacy table is visible in the current schema
func (m *V1Migration) Verify(ctx context.Context, db DBExecutor) error {
	return expectZero(ctx, db, "legacy tables exist", `
		SELECT COUNT(*) FROM unnest($1::text[]) AS t(name)
		WHERE to_regclass(t.name) IS NULL
	`, pq.Array(schema.TableNames()))
}

func init() {
	Register(&V1Migration{})
}
