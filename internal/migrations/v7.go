package migrations

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/domain"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

// V7Migration settles users.primary_role as a system role name and grants
// the matching role through user_roles
type V7Migration struct{}

func (m *V7Migration) GetVersion() int {
	return 7
}

func (m *V7Migration) Description() string {
	return "settle primary_role and backfill user_roles"
}

func (m *V7Migration) HasSystemUpdate() bool {
	return true
}

func (m *V7Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V7Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	log := LoggerFromContext(ctx)

	dataType, err := database.ColumnType(ctx, db, "users", "primary_role")
	if err != nil {
		return err
	}

	var steps []step
	switch dataType {
	case "":
		steps = append(steps, step{name: "add primary_role", query: "ALTER TABLE users ADD COLUMN primary_role TEXT"})
	case "uuid":
		// an earlier schema stored role ids here
		steps = append(steps, step{
			name:  "convert primary_role to text",
			query: "ALTER TABLE users ALTER COLUMN primary_role TYPE TEXT USING primary_role::text",
		})
	}

	query, args, err := primaryRoleUpdate()
	if err != nil {
		return fmt.Errorf("failed to build primary_role update: %w", err)
	}
	steps = append(steps,
		step{
			// ids of roles created outside the seed are not RoleID values
			name: "resolve role ids in primary_role",
			query: `UPDATE users AS u SET primary_role = r.name
				FROM roles AS r
				WHERE r.id::text = lower(btrim(u.primary_role))`,
		},
		step{name: "map primary_role to role names", query: query, args: args},
		step{
			name: "constrain primary_role",
			query: fmt.Sprintf(`ALTER TABLE users
				ALTER COLUMN primary_role SET DEFAULT %s,
				ALTER COLUMN primary_role SET NOT NULL`, pq.QuoteLiteral(domain.DefaultRole)),
		},
		step{
			name: "backfill user_roles",
			query: `INSERT INTO user_roles (user_id, role_id, business_id)
				SELECT u.id, r.id, u.business_id
				FROM users u
				JOIN roles r ON r.name = u.primary_role AND r.business_id IS NULL
				ON CONFLICT (user_id, role_id) DO NOTHING`,
		},
	)

	if err := execSteps(ctx, db, steps); err != nil {
		return err
	}

	return logRoleDistribution(ctx, db, log)
}

// primaryRoleUpdate maps every stored value (role name, legacy alias, or role
// id) to a system role name. Anything else becomes the default role.
func primaryRoleUpdate() (string, []interface{}, error) {
	mapping := domain.RoleAliases()
	for _, name := range domain.SystemRoleNames() {
		mapping[name] = name
		mapping[domain.RoleID(name).String()] = name
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	roleCase := sq.Case("lower(btrim(primary_role))")
	for _, k := range keys {
		roleCase = roleCase.When(sq.Expr("?", k), sq.Expr("?", mapping[k]))
	}
	roleCase = roleCase.Else(sq.Expr("?", domain.DefaultRole))

	return psql.Update("users").Set("primary_role", roleCase).ToSql()
}

// logRoleDistribution logs how many users ended up in each role
func logRoleDistribution(ctx context.Context, db DBExecutor, log logger.Logger) error {
	rows, err := db.QueryContext(ctx, `SELECT primary_role, COUNT(*) FROM users GROUP BY primary_role ORDER BY primary_role`)
	if err != nil {
		return &StepError{Step: "read role distribution", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var role string
		var count int64
		if err := rows.Scan(&role, &count); err != nil {
			return err
		}
		log.WithField("role", role).WithField("users", count).Info("Role assigned")
	}
	return rows.Err()
}

func (m *V7Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every user holds a system role name and a matching grant
func (m *V7Migration) Verify(ctx context.Context, db DBExecutor) error {
	if err := expectZero(ctx, db, "primary_role names a system role",
		`SELECT COUNT(*) FROM users WHERE primary_role <> ALL($1::text[])`,
		pq.Array(domain.SystemRoleNames())); err != nil {
		return err
	}
	return expectZero(ctx, db, "users have a role", `
		SELECT COUNT(*) FROM users u
		WHERE NOT EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id)
	`)
}

func init() {
	Register(&V7Migration{})
}
