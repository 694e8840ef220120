package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V8Migration adds human-readable ids (JKDP-CUS-001) backed by per-business counters
type V8Migration struct{}

// GetVersion returns the schema version this migration produces
func (m *V8Migration) GetVersion() int {
	return 8
}

// Description is recorded in migration_history
func (m *V8Migration) Description() string {
	return "human ids and entity counters"
}

// HasSystemUpdate indicates if this migration has system-level changes
func (m *V8Migration) HasSystemUpdate() bool {
	return true
}

// HasTenantUpdate indicates if this migration has per-business changes
func (m *V8Migration) HasTenantUpdate() bool {
	return true
}

// UpdateSystem creates the counter table, the human_id columns and next_human_id()
func (m *V8Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	steps := []step{
		{
			name: "create entity_counters",
			query: `CREATE TABLE IF NOT EXISTS entity_counters (
				business_id UUID NOT NULL REFERENCES businesses (id) ON DELETE CASCADE,
				entity TEXT NOT NULL,
				last_value BIGINT NOT NULL DEFAULT 0 CHECK (last_value >= 0),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (business_id, entity)
			)`,
		},
		{
			name:  "add businesses.code",
			query: `ALTER TABLE businesses ADD COLUMN IF NOT EXISTS code TEXT`,
		},
	}

	for _, entity := range domain.HumanIDEntities {
		table := pq.QuoteIdentifier(entity.Table)
		steps = append(steps, step{
			name:  "add human_id to " + entity.Table,
			query: fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS human_id TEXT`, table),
		})
	}

	steps = append(steps, step{name: "create next_human_id", query: nextHumanIDFunction})

	return execSteps(ctx, db, steps)
}

// nextHumanIDFunction issues ids for rows created after the backfill. The
// counter row is locked by the upsert, so concurrent callers get distinct values.
const nextHumanIDFunction = `
CREATE OR REPLACE FUNCTION next_human_id(p_business_id UUID, p_entity TEXT) RETURNS TEXT AS $$
DECLARE
	v_code TEXT;
	v_next BIGINT;
BEGIN
	SELECT code INTO v_code FROM businesses WHERE id = p_business_id;
	IF v_code IS NULL THEN
		RAISE EXCEPTION 'business % has no code', p_business_id;
	END IF;

	INSERT INTO entity_counters (business_id, entity, last_value)
	VALUES (p_business_id, p_entity, 1)
	ON CONFLICT (business_id, entity) DO UPDATE
		SET last_value = entity_counters.last_value + 1, updated_at = now()
	RETURNING last_value INTO v_next;

	RETURN v_code || '-' || p_entity || '-' || lpad(v_next::text, GREATEST(3, length(v_next::text)), '0');
END;
$$ LANGUAGE plpgsql`

// UpdateTenant sets the business code and numbers every row without a valid human id
func (m *V8Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	log := LoggerFromContext(ctx)
	code := business.DisplayCode()

	if _, err := db.ExecContext(ctx,
		`UPDATE businesses SET code = $1 WHERE id = $2 AND code IS DISTINCT FROM $1`,
		code, business.ID); err != nil {
		return &StepError{Step: "set business code", Err: err}
	}
	business.Code = code

	for _, entity := range domain.HumanIDEntities {
		plan, err := backfillHumanIDs(ctx, db, business.ID, code, entity)
		if err != nil {
			return fmt.Errorf("failed to number %s: %w", entity.Table, err)
		}
		log.WithField("table", entity.Table).
			WithField("assigned", len(plan.ids)).
			WithField("kept", plan.kept).
			WithField("last", plan.last).
			Info("Human ids assigned")
	}
	return nil
}

// humanIDRow is a row of an entity table as read for numbering
type humanIDRow struct {
	id      string
	humanID sql.NullString
}

// humanIDPlan lists the ids to write and the last sequence issued
type humanIDPlan struct {
	ids      []string
	humanIDs []string
	kept     int
	last     int
}

// planHumanIDs keeps existing well-formed ids of this business and entity and
// numbers the remaining rows after the highest sequence seen, in row order.
func planHumanIDs(code string, entity domain.EntityCode, counter int, rows []humanIDRow) (humanIDPlan, error) {
	plan := humanIDPlan{last: counter}
	used := make(map[int]bool)
	var pending []string

	for _, row := range rows {
		if row.humanID.Valid {
			parsed, err := domain.ParseHumanID(row.humanID.String)
			if err == nil && parsed.BusinessCode == code && parsed.Entity == entity && !used[parsed.Sequence] {
				used[parsed.Sequence] = true
				plan.kept++
				if parsed.Sequence > plan.last {
					plan.last = parsed.Sequence
				}
				continue
			}
		}
		pending = append(pending, row.id)
	}

	for _, id := range pending {
		plan.last++
		humanID, err := domain.FormatHumanID(code, entity, plan.last)
		if err != nil {
			return humanIDPlan{}, err
		}
		plan.ids = append(plan.ids, id)
		plan.humanIDs = append(plan.humanIDs, humanID)
	}
	return plan, nil
}

func backfillHumanIDs(ctx context.Context, db DBExecutor, businessID, code string, entity domain.HumanIDEntity) (humanIDPlan, error) {
	table := pq.QuoteIdentifier(entity.Table)

	var counter int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT last_value FROM entity_counters WHERE business_id = $1 AND entity = $2), 0)`,
		businessID, string(entity.Code)).Scan(&counter); err != nil {
		return humanIDPlan{}, &StepError{Step: "read counter", Err: err}
	}

	rows, err := readHumanIDRows(ctx, db, table, businessID)
	if err != nil {
		return humanIDPlan{}, &StepError{Step: "read rows", Err: err}
	}

	plan, err := planHumanIDs(code, entity.Code, counter, rows)
	if err != nil {
		return humanIDPlan{}, err
	}

	for start := 0; start < len(plan.ids); start += conversionBatchSize {
		end := start + conversionBatchSize
		if end > len(plan.ids) {
			end = len(plan.ids)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s AS x SET human_id = v.human_id
			FROM unnest($1::uuid[], $2::text[]) AS v(id, human_id)
			WHERE x.id = v.id`, table),
			pq.Array(plan.ids[start:end]), pq.Array(plan.humanIDs[start:end])); err != nil {
			return humanIDPlan{}, &StepError{Step: fmt.Sprintf("write human ids %d-%d", start+1, end), Err: err}
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO entity_counters (business_id, entity, last_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id, entity) DO UPDATE SET
			last_value = GREATEST(entity_counters.last_value, EXCLUDED.last_value),
			updated_at = now()`,
		businessID, string(entity.Code), plan.last); err != nil {
		return humanIDPlan{}, &StepError{Step: "store counter", Err: err}
	}

	return plan, nil
}

func readHumanIDRows(ctx context.Context, db DBExecutor, table, businessID string) ([]humanIDRow, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id::text, human_id FROM %s WHERE business_id = $1 ORDER BY created_at, id`, table), businessID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []humanIDRow
	for rows.Next() {
		var row humanIDRow
		if err := rows.Scan(&row.id, &row.humanID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Verify checks every row that belongs to a business has a unique human id,
// then adds the unique indexes. They come after the tenant backfill so
// duplicates left by an earlier schema are renumbered rather than rejected.
func (m *V8Migration) Verify(ctx context.Context, db DBExecutor) error {
	missing := make([]string, 0, len(domain.HumanIDEntities))
	duplicated := make([]string, 0, len(domain.HumanIDEntities))
	for _, entity := range domain.HumanIDEntities {
		table := pq.QuoteIdentifier(entity.Table)
		missing = append(missing, fmt.Sprintf(
			"(SELECT COUNT(*) FROM %s WHERE business_id IS NOT NULL AND human_id IS NULL)", table))
		duplicated = append(duplicated, fmt.Sprintf(
			"(SELECT COUNT(*) FROM (SELECT 1 FROM %s WHERE business_id IS NOT NULL AND human_id IS NOT NULL GROUP BY business_id, human_id HAVING COUNT(*) > 1) d)", table))
	}
	if err := expectZero(ctx, db, "rows have human ids", "SELECT "+strings.Join(missing, " + ")); err != nil {
		return err
	}
	if err := expectZero(ctx, db, "human ids are unique", "SELECT "+strings.Join(duplicated, " + ")); err != nil {
		return err
	}
	return execSteps(ctx, db, humanIDIndexSteps())
}

func humanIDIndexSteps() []step {
	steps := make([]step, 0, len(domain.HumanIDEntities))
	for _, entity := range domain.HumanIDEntities {
		steps = append(steps, step{
			name: "index human_id of " + entity.Table,
			query: fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (business_id, human_id)`,
				pq.QuoteIdentifier("uq_"+entity.Table+"_human_id"), pq.QuoteIdentifier(entity.Table)),
		})
	}
	return steps
}

func init() {
	Register(&V8Migration{})
}
