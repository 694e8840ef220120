package migrations

import (
	"context"
	"fmt"

	"github.com/asaskevich/govalidator"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/database"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V5Migration folds staff_members into users and drops staff_members.
// Staff are matched to users of the same business by case-insensitive email;
// unmatched staff become users keeping their converted id.
type V5Migration struct{}

func (m *V5Migration) GetVersion() int {
	return 5
}

func (m *V5Migration) Description() string {
	return "merge staff_members into users"
}

func (m *V5Migration) HasSystemUpdate() bool {
	return true
}

func (m *V5Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V5Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	log := LoggerFromContext(ctx)

	exists, err := database.TableExists(ctx, db, "staff_members")
	if err != nil {
		return err
	}
	if !exists {
		log.Info("staff_members already merged, skipping")
		return nil
	}

	usersBefore, err := database.CountRows(ctx, db, "users")
	if err != nil {
		return err
	}
	staff, err := database.CountRows(ctx, db, "staff_members")
	if err != nil {
		return err
	}
	log.WithField("users", usersBefore).WithField("staff", staff).Info("Before merge")

	if err := execSteps(ctx, db, staffMergeSteps); err != nil {
		return err
	}

	if err := reportInvalidEmails(ctx, db); err != nil {
		return err
	}

	if err := execSteps(ctx, db, []step{{name: "drop staff_members", query: "DROP TABLE IF EXISTS staff_members"}}); err != nil {
		return err
	}

	usersAfter, err := database.CountRows(ctx, db, "users")
	if err != nil {
		return err
	}
	log.WithField("users", usersAfter).WithField("created", usersAfter-usersBefore).Info("After merge")
	return nil
}

var staffMergeSteps = []step{
	{
		name: "normalize user emails",
		query: `UPDATE users SET email = NULLIF(lower(btrim(email)), '')
			WHERE email IS DISTINCT FROM NULLIF(lower(btrim(email)), '')`,
	},
	{
		name: "normalize staff emails",
		query: `UPDATE staff_members SET email = NULLIF(lower(btrim(email)), '')
			WHERE email IS DISTINCT FROM NULLIF(lower(btrim(email)), '')`,
	},
	{
		name: "create user_merge_map",
		query: `CREATE TABLE IF NOT EXISTS user_merge_map (
			staff_id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			business_id UUID,
			staff_legacy_id TEXT NOT NULL,
			match_type TEXT NOT NULL CHECK (match_type IN ('email', 'created')),
			merged_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	{
		name: "map staff matched by email",
		query: `INSERT INTO user_merge_map (staff_id, user_id, business_id, staff_legacy_id, match_type)
			SELECT DISTINCT ON (s.id) s.id, u.id, s.business_id, s.legacy_id, 'email'
			FROM staff_members s
			JOIN users u ON u.business_id = s.business_id AND u.email = s.email
			WHERE s.email IS NOT NULL
			ORDER BY s.id, u.created_at, u.id
			ON CONFLICT (staff_id) DO NOTHING`,
	},
	{
		name: "enrich matched users",
		query: `UPDATE users u SET
				display_name = COALESCE(NULLIF(u.display_name, ''), s.name),
				phone = COALESCE(NULLIF(u.phone, ''), s.phone),
				primary_role = COALESCE(NULLIF(u.primary_role, ''), s.role)
			FROM user_merge_map m
			JOIN staff_members s ON s.id = m.staff_id
			WHERE m.user_id = u.id AND m.match_type = 'email'`,
	},
	{
		name: "create users for unmatched staff",
		query: `INSERT INTO users (id, business_id, email, display_name, phone, primary_role, legacy_id, created_at, updated_at)
			SELECT s.id, s.business_id, s.email, s.name, s.phone, s.role, 'staff:' || s.legacy_id, s.created_at, now()
			FROM staff_members s
			WHERE NOT EXISTS (SELECT 1 FROM user_merge_map m WHERE m.staff_id = s.id)
			ON CONFLICT (id) DO NOTHING`,
	},
	{
		name: "map created users",
		query: `INSERT INTO user_merge_map (staff_id, user_id, business_id, staff_legacy_id, match_type)
			SELECT s.id, s.id, s.business_id, s.legacy_id, 'created'
			FROM staff_members s
			WHERE NOT EXISTS (SELECT 1 FROM user_merge_map m WHERE m.staff_id = s.id)
			ON CONFLICT (staff_id) DO NOTHING`,
	},
}

// reportInvalidEmails logs user emails that would not pass validation. They are kept as is.
func reportInvalidEmails(ctx context.Context, db DBExecutor) error {
	rows, err := db.QueryContext(ctx, `SELECT id::text, email FROM users WHERE email IS NOT NULL ORDER BY id`)
	if err != nil {
		return &StepError{Step: "read user emails", Err: err}
	}
	defer func() {
		_ = rows.Close()
	}()

	log := LoggerFromContext(ctx)
	invalid := 0
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return err
		}
		if !govalidator.IsEmail(email) {
			invalid++
			log.WithField("user", id).WithField("email", email).Warn("User has an invalid email")
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if invalid > 0 {
		log.WithField("count", invalid).Warn(fmt.Sprintf("%d users have invalid emails", invalid))
	}
	return nil
}

func (m *V5Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

// Verify checks every staff member was mapped to an existing user
func (m *V5Migration) Verify(ctx context.Context, db DBExecutor) error {
	if err := expectZero(ctx, db, "staff_members dropped",
		`SELECT COUNT(*) FROM (SELECT to_regclass('staff_members') AS t) x WHERE x.t IS NOT NULL`); err != nil {
		return err
	}
	return expectZero(ctx, db, "merge map points at users", `
		SELECT COUNT(*) FROM user_merge_map m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE u.id IS NULL
	`)
}

func init() {
	Register(&V5Migration{})
}
