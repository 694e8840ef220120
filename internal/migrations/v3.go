package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

const conversionBatchSize = 500

// V3Migration converts primary keys and references from document ids to UUIDs
type V3Migration struct{}

func (m *V3Migration) GetVersion() int {
	return 3
}

func (m *V3Migration) Description() string {
	return "convert identifiers to uuid"
}

func (m *V3Migration) HasSystemUpdate() bool {
	return true
}

func (m *V3Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem rewrites every id and reference column. References are mapped
// with the referenced table's name, so a dangling reference stays dangling
// and is dealt with when foreign keys are created.
func (m *V3Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	namespace, err := legacyNamespace(cfg)
	if err != nil {
		return err
	}

	log := LoggerFromContext(ctx)
	for _, table := range schema.Tables {
		converted, err := convertTable(ctx, db, namespace, table.Name)
		if err != nil {
			return fmt.Errorf("failed to convert %s: %w", table.Name, err)
		}
		log.WithField("table", table.Name).WithField("rows", converted).Info("Identifiers converted")
	}
	return nil
}

func (m *V3Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every id and reference column is now a uuid
func (m *V3Migration) Verify(ctx context.Context, db DBExecutor) error {
	var tables, columns []string
	for _, table := range schema.Tables {
		for _, column := range idColumns(table.Name) {
			tables = append(tables, table.Name)
			columns = append(columns, column.name)
		}
	}

	return expectZero(ctx, db, "identifier columns are uuid", `
		SELECT COUNT(*) FROM unnest($1::text[], $2::text[]) AS c(table_name, column_name)
		LEFT JOIN information_schema.columns ic
			ON ic.table_schema = current_schema()
			AND ic.table_name = c.table_name
			AND ic.column_name = c.column_name
		WHERE ic.data_type IS DISTINCT FROM 'uuid'
	`, pq.Array(tables), pq.Array(columns))
}

// idColumn is a text column holding a document id of refTable
type idColumn struct {
	name     string
	refTable string
}

func (c idColumn) staging() string {
	return "new_" + c.name
}

func idColumns(table string) []idColumn {
	columns := []idColumn{{name: "id", refTable: table}}
	for _, ref := range schema.ReferencesFrom(table) {
		columns = append(columns, idColumn{name: ref.Column, refTable: ref.RefTable})
	}
	return columns
}

// convertTable converts one table and returns the number of rows rewritten
func convertTable(ctx context.Context, db DBExecutor, namespace uuid.UUID, table string) (int, error) {
	dataType, err := database.ColumnType(ctx, db, table, "id")
	if err != nil {
		return 0, err
	}
	if dataType == "uuid" {
		LoggerFromContext(ctx).WithField("table", table).Info("Identifiers already converted, skipping")
		return 0, nil
	}

	columns := idColumns(table)
	quoted := pq.QuoteIdentifier(table)

	adds := make([]string, 0, len(columns))
	for _, c := range columns {
		adds = append(adds, "ADD COLUMN IF NOT EXISTS "+pq.QuoteIdentifier(c.staging())+" UUID")
	}
	if _, err := db.ExecContext(ctx, "ALTER TABLE "+quoted+" "+strings.Join(adds, ", ")); err != nil {
		return 0, &StepError{Step: "add staging columns", Err: err}
	}

	rows, err := readLegacyIDs(ctx, db, table, columns)
	if err != nil {
		return 0, &StepError{Step: "read legacy ids", Err: err}
	}

	for start := 0; start < len(rows); start += conversionBatchSize {
		end := start + conversionBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := writeUUIDBatch(ctx, db, namespace, table, columns, rows[start:end]); err != nil {
			return 0, &StepError{Step: fmt.Sprintf("write uuids %d-%d", start+1, end), Err: err}
		}
	}

	if err := execSteps(ctx, db, swapColumnSteps(table, columns)); err != nil {
		return 0, err
	}

	return len(rows), nil
}

func readLegacyIDs(ctx context.Context, db DBExecutor, table string, columns []idColumn) ([][]sql.NullString, error) {
	selects := make([]string, 0, len(columns))
	for _, c := range columns {
		selects = append(selects, pq.QuoteIdentifier(c.name)+"::text")
	}

	rows, err := db.QueryContext(ctx, "SELECT "+strings.Join(selects, ", ")+" FROM "+pq.QuoteIdentifier(table))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out [][]sql.NullString
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

func writeUUIDBatch(ctx context.Context, db DBExecutor, namespace uuid.UUID, table string, columns []idColumn, rows [][]sql.NullString) error {
	legacy := make([]string, len(rows))
	mapped := make([][]sql.NullString, len(columns))
	for i := range mapped {
		mapped[i] = make([]sql.NullString, len(rows))
	}

	for r, row := range rows {
		legacy[r] = row[0].String
		for i, c := range columns {
			value := strings.TrimSpace(row[i].String)
			if !row[i].Valid || value == "" {
				continue
			}
			mapped[i][r] = sql.NullString{String: LegacyUUID(namespace, c.refTable, value).String(), Valid: true}
		}
	}

	sets := make([]string, 0, len(columns))
	casts := []string{"$1::text[]"}
	aliases := []string{"legacy"}
	args := []interface{}{pq.Array(legacy)}
	for i, c := range columns {
		staging := pq.QuoteIdentifier(c.staging())
		sets = append(sets, fmt.Sprintf("%s = v.%s", staging, staging))
		casts = append(casts, fmt.Sprintf("$%d::uuid[]", i+2))
		aliases = append(aliases, staging)
		args = append(args, pq.Array(mapped[i]))
	}

	query := fmt.Sprintf(`UPDATE %s AS t SET %s
		FROM unnest(%s) AS v(%s)
		WHERE t.id = v.legacy`,
		pq.QuoteIdentifier(table), strings.Join(sets, ", "), strings.Join(casts, ", "), strings.Join(aliases, ", "))

	_, err := db.ExecContext(ctx, query, args...)
	return err
}

// swapColumnSteps replaces the text columns by their uuid staging columns
func swapColumnSteps(table string, columns []idColumn) []step {
	quoted := pq.QuoteIdentifier(table)
	pkey := pq.QuoteIdentifier(table + "_pkey")

	drops := make([]string, 0, len(columns))
	for _, c := range columns {
		drops = append(drops, "DROP COLUMN "+pq.QuoteIdentifier(c.name))
	}

	steps := []step{
		{name: "drop primary key of " + table, query: fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", quoted, pkey)},
		{name: "drop text ids of " + table, query: fmt.Sprintf("ALTER TABLE %s %s", quoted, strings.Join(drops, ", "))},
	}
	for _, c := range columns {
		steps = append(steps, step{
			name:  "rename " + c.staging() + " of " + table,
			query: fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoted, pq.QuoteIdentifier(c.staging()), pq.QuoteIdentifier(c.name)),
		})
	}
	steps = append(steps, step{
		name: "restore primary key of " + table,
		query: fmt.Sprintf(`ALTER TABLE %s
			ALTER COLUMN id SET DEFAULT gen_random_uuid(),
			ALTER COLUMN id SET NOT NULL,
			ADD CONSTRAINT %s PRIMARY KEY (id)`, quoted, pkey),
	})
	return steps
}

func init() {
	Register(&V3Migration{})
}
