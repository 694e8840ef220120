package migrations

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V4Migration clears dangling references and creates the foreign keys
type V4Migration struct{}

// GetVersion returns the schema version this migration produces
func (m *V4Migration) GetVersion() int {
	return 4
}

// Description is recorded in migration_history
func (m *V4Migration) Description() string {
	return "foreign keys and reference indexes"
}

// HasSystemUpdate indicates if this migration has system-level changes
func (m *V4Migration) HasSystemUpdate() bool {
	return true
}

// HasTenantUpdate indicates if this migration has per-business changes
func (m *V4Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V4Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	log := LoggerFromContext(ctx)

	var cleared int64
	for _, ref := range schema.References {
		n, err := clearDanglingReferences(ctx, db, ref)
		if err != nil {
			return err
		}
		if n > 0 {
			log.WithField("table", ref.Table).
				WithField("column", ref.Column).
				WithField("rows", n).
				Warn("Cleared references to missing rows")
		}
		cleared += n
	}
	log.WithField("rows", cleared).Info("Dangling references cleared")

	steps := make([]step, 0, 3*len(schema.References))
	for _, ref := range schema.References {
		steps = append(steps, foreignKeySteps(ref)...)
	}
	if err := execSteps(ctx, db, steps); err != nil {
		return err
	}

	log.WithField("constraints", len(schema.References)).Info("Foreign keys created")
	return nil
}

func clearDanglingReferences(ctx context.Context, db DBExecutor, ref schema.Reference) (int64, error) {
	table := pq.QuoteIdentifier(ref.Table)
	column := pq.QuoteIdentifier(ref.Column)

	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s AS c SET %s = NULL
		WHERE c.%s IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM %s AS p WHERE p.id = c.%s)`,
		table, column, column, pq.QuoteIdentifier(ref.RefTable), column))
	if err != nil {
		return 0, &StepError{Step: fmt.Sprintf("clear dangling %s.%s", ref.Table, ref.Column), Err: err}
	}
	return result.RowsAffected()
}

func foreignKeySteps(ref schema.Reference) []step {
	table := pq.QuoteIdentifier(ref.Table)
	constraint := pq.QuoteIdentifier(ref.ConstraintName())

	return []step{
		{
			name:  "drop " + ref.ConstraintName(),
			query: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", table, constraint),
		},
		{
			name: "create " + ref.ConstraintName(),
			query: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id) ON DELETE %s",
				table, constraint, pq.QuoteIdentifier(ref.Column), pq.QuoteIdentifier(ref.RefTable), ref.OnDelete),
		},
		{
			name: "create " + ref.IndexName(),
			query: fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
				pq.QuoteIdentifier(ref.IndexName()), table, pq.QuoteIdentifier(ref.Column)),
		},
	}
}

// UpdateTenant executes per-business migration changes
func (m *V4Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every foreign key exists
func (m *V4Migration) Verify(ctx context.Context, db DBExecutor) error {
	names := make([]string, 0, len(schema.References))
	for _, ref := range schema.References {
		names = append(names, ref.ConstraintName())
	}

	return expectZero(ctx, db, "foreign keys exist", `
		SELECT COUNT(*) FROM unnest($1::text[]) AS c(name)
		WHERE NOT EXISTS (
			SELECT 1 FROM pg_constraint
			WHERE conname = c.name AND contype = 'f'
		)
	`, pq.Array(names))
}

func init() {
	Register(&V4Migration{})
}
