package migrations

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V2Migration keeps the document ids in legacy_id and adds audit timestamps
type V2Migration struct{}

// GetVersion returns the schema version this migration produces
func (m *V2Migration) GetVersion() int {
	return 2
}

// Description is recorded in migration_history
func (m *V2Migration) Description() string {
	return "legacy_id and audit timestamps"
}

// HasSystemUpdate indicates if this migration has system-level changes
func (m *V2Migration) HasSystemUpdate() bool {
	return true
}

// HasTenantUpdate indicates if this migration has per-business changes
func (m *V2Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V2Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	steps := []step{{
		name: "create set_updated_at function",
		query: `
			CREATE OR REPLACE FUNCTION set_updated_at() RETURNS TRIGGER AS $$
			BEGIN
				NEW.updated_at = now();
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql`,
	}}

	for _, table := range schema.Tables {
		steps = append(steps, auditColumnSteps(table.Name)...)
	}

	return execSteps(ctx, db, steps)
}

func auditColumnSteps(table string) []step {
	t := pq.QuoteIdentifier(table)
	trigger := pq.QuoteIdentifier("trg_" + table + "_updated_at")

	return []step{
		{
			name: "add audit columns to " + table,
			query: fmt.Sprintf(`ALTER TABLE %s
				ADD COLUMN IF NOT EXISTS legacy_id TEXT,
				ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ,
				ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ`, t),
		},
		{
			name: "backfill audit columns of " + table,
			query: fmt.Sprintf(`UPDATE %s SET
				legacy_id = COALESCE(legacy_id, id::text),
				created_at = COALESCE(created_at, now()),
				updated_at = COALESCE(updated_at, created_at, now())
				WHERE legacy_id IS NULL OR created_at IS NULL OR updated_at IS NULL`, t),
		},
		{
			name: "constrain audit columns of " + table,
			query: fmt.Sprintf(`ALTER TABLE %s
				ALTER COLUMN legacy_id SET NOT NULL,
				ALTER COLUMN created_at SET DEFAULT now(),
				ALTER COLUMN created_at SET NOT NULL,
				ALTER COLUMN updated_at SET DEFAULT now(),
				ALTER COLUMN updated_at SET NOT NULL`, t),
		},
		{
			name:  "index legacy_id of " + table,
			query: fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (legacy_id)`, pq.QuoteIdentifier("uq_"+table+"_legacy_id"), t),
		},
		{
			name:  "drop updated_at trigger of " + table,
			query: fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, t),
		},
		{
			name: "create updated_at trigger of " + table,
			query: fmt.Sprintf(`CREATE TRIGGER %s BEFORE UPDATE ON %s
				FOR EACH ROW EXECUTE FUNCTION set_updated_at()`, trigger, t),
		},
	}
}

// UpdateTenant executes per-business migration changes
func (m *V2Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

func init() {
	Register(&V2Migration{})
}
