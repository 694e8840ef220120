package migrations

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// V6Migration creates the RBAC tables and seeds the system roles
type V6Migration struct{}

// GetVersion returns the schema version this migration produces
func (m *V6Migration) GetVersion() int {
	return 6
}

// Description is recorded in migration_history
func (m *V6Migration) Description() string {
	return "rbac tables and system roles"
}

// HasSystemUpdate indicates if this migration has system-level changes
func (m *V6Migration) HasSystemUpdate() bool {
	return true
}

// HasTenantUpdate indicates if this migration has per-business changes
func (m *V6Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V6Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	if err := execSteps(ctx, db, rbacTableSteps); err != nil {
		return err
	}

	seed, err := rbacSeedSteps()
	if err != nil {
		return err
	}
	if err := execSteps(ctx, db, seed); err != nil {
		return err
	}

	LoggerFromContext(ctx).
		WithField("roles", len(domain.SystemRoles())).
		WithField("permissions", len(domain.AllPermissions())).
		Info("System roles seeded")
	return nil
}

var rbacTableSteps = []step{
	{
		name: "create roles",
		query: `CREATE TABLE IF NOT EXISTS roles (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID REFERENCES businesses (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	{
		name:  "index system role names",
		query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_system_name ON roles (name) WHERE business_id IS NULL`,
	},
	{
		name:  "index business role names",
		query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_business_name ON roles (business_id, name) WHERE business_id IS NOT NULL`,
	},
	{
		name: "create permissions",
		query: `CREATE TABLE IF NOT EXISTS permissions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code TEXT NOT NULL UNIQUE,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			description TEXT
		)`,
	},
	{
		name: "create role_permissions",
		query: `CREATE TABLE IF NOT EXISTS role_permissions (
			role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
			permission_id UUID NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
			PRIMARY KEY (role_id, permission_id)
		)`,
	},
	{
		name: "create user_roles",
		query: `CREATE TABLE IF NOT EXISTS user_roles (
			user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			role_id UUID NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
			business_id UUID REFERENCES businesses (id) ON DELETE CASCADE,
			granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, role_id)
		)`,
	},
	{
		name:  "index user_roles by role",
		query: `CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles (role_id)`,
	},
}

// rbacSeedSteps builds the idempotent inserts for the system roles and
// permissions. Rows are matched by code and name rather than id, so a schema
// that already holds a system role under another id keeps it and gets the grants.
func rbacSeedSteps() ([]step, error) {
	permissions := psql.Insert("permissions").
		Columns("id", "code", "resource", "action", "description")
	for _, p := range domain.AllPermissions() {
		permissions = permissions.Values(p.ID().String(), p.Code(), string(p.Resource), string(p.Action), p.Description())
	}
	permissions = permissions.Suffix("ON CONFLICT (code) DO NOTHING")

	roles := psql.Insert("roles").
		Columns("id", "business_id", "name", "description", "is_system")
	for _, r := range domain.SystemRoles() {
		roles = roles.Values(r.ID().String(), nil, r.Name, r.Description, true)
	}
	roles = roles.Suffix("ON CONFLICT (name) WHERE business_id IS NULL DO UPDATE SET is_system = TRUE")

	var steps []step
	for _, b := range []struct {
		name    string
		builder sq.InsertBuilder
	}{
		{"seed permissions", permissions},
		{"seed system roles", roles},
	} {
		query, args, err := b.builder.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", b.name, err)
		}
		steps = append(steps, step{name: b.name, query: query, args: args})
	}

	roleNames, codes := grantMatrix()
	steps = append(steps, step{
		name: "seed role permissions",
		query: `INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id
			FROM unnest($1::text[], $2::text[]) AS g(role_name, code)
			JOIN roles r ON r.name = g.role_name AND r.business_id IS NULL
			JOIN permissions p ON p.code = g.code
			ON CONFLICT (role_id, permission_id) DO NOTHING`,
		args: []interface{}{pq.Array(roleNames), pq.Array(codes)},
	})
	return steps, nil
}

// grantMatrix flattens the system role permissions into parallel slices
func grantMatrix() (roleNames, codes []string) {
	for _, r := range domain.SystemRoles() {
		for _, p := range r.Permissions {
			roleNames = append(roleNames, r.Name)
			codes = append(codes, p.Code())
		}
	}
	return roleNames, codes
}

// UpdateTenant executes per-business migration changes
func (m *V6Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every grant of the role matrix is present
func (m *V6Migration) Verify(ctx context.Context, db DBExecutor) error {
	roleNames, codes := grantMatrix()
	return expectZero(ctx, db, "system role grants", `
		SELECT COUNT(*) FROM unnest($1::text[], $2::text[]) AS g(role_name, code)
		WHERE NOT EXISTS (
			SELECT 1 FROM role_permissions rp
			JOIN roles r ON r.id = rp.role_id AND r.business_id IS NULL
			JOIN permissions p ON p.id = rp.permission_id
			WHERE r.name = g.role_name AND p.code = g.code
		)`, pq.Array(roleNames), pq.Array(codes))
}

func init() {
	Register(&V6Migration{})
}
