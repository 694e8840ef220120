package migrations

import (
	"context"
	"fmt"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

// V9Migration creates the display views keyed by human ids
type V9Migration struct{}

// GetVersion returns the schema version this migration produces
func (m *V9Migration) GetVersion() int {
	return 9
}

// Description is recorded in migration_history
func (m *V9Migration) Description() string {
	return "display views"
}

// HasSystemUpdate indicates if this migration has system-level changes
func (m *V9Migration) HasSystemUpdate() bool {
	return true
}

// HasTenantUpdate indicates if this migration has per-business changes
func (m *V9Migration) HasTenantUpdate() bool {
	return false
}

// UpdateSystem executes system-level migration changes
func (m *V9Migration) UpdateSystem(ctx context.Context, cfg *config.Config, db DBExecutor) error {
	// Jobs with their customer and service resolved to display values
	_, err := db.ExecContext(ctx, `
		CREATE OR REPLACE VIEW job_overview AS
		SELECT
			j.id,
			j.business_id,
			b.code AS business_code,
			j.human_id,
			j.title,
			j.status,
			j.quantity,
			j.total,
			j.due_date,
			c.human_id AS customer_human_id,
			c.name AS customer_name,
			s.human_id AS service_human_id,
			s.name AS service_name,
			j.created_at
		FROM jobs j
		JOIN businesses b ON b.id = j.business_id
		LEFT JOIN customers c ON c.id = j.customer_id
		LEFT JOIN services s ON s.id = j.service_id
	`)
	if err != nil {
		return fmt.Errorf("failed to create job_overview view: %w", err)
	}

	// Invoices with the amount paid so far
	_, err = db.ExecContext(ctx, `
		CREATE OR REPLACE VIEW invoice_overview AS
		SELECT
			i.id,
			i.business_id,
			i.human_id,
			i.number,
			i.status,
			i.amount,
			COALESCE(p.paid, 0) AS paid,
			i.amount - COALESCE(p.paid, 0) AS balance,
			i.issued_at,
			i.due_at,
			j.human_id AS job_human_id,
			c.human_id AS customer_human_id,
			c.name AS customer_name
		FROM invoices i
		LEFT JOIN jobs j ON j.id = i.job_id
		LEFT JOIN customers c ON c.id = i.customer_id
		LEFT JOIN (
			SELECT invoice_id, SUM(amount) AS paid
			FROM payments
			GROUP BY invoice_id
		) p ON p.invoice_id = i.id
	`)
	if err != nil {
		return fmt.Errorf("failed to create invoice_overview view: %w", err)
	}

	// Effective permissions per user, one row per grant
	_, err = db.ExecContext(ctx, `
		CREATE OR REPLACE VIEW user_access AS
		SELECT
			u.id AS user_id,
			u.business_id,
			u.human_id,
			u.email,
			r.name AS role,
			p.code AS permission
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
	`)
	if err != nil {
		return fmt.Errorf("failed to create user_access view: %w", err)
	}

	return nil
}

// UpdateTenant executes per-business migration changes
func (m *V9Migration) UpdateTenant(ctx context.Context, cfg *config.Config, business *domain.Business, db DBExecutor) error {
	return nil
}

func init() {
	Register(&V9Migration{})
}
