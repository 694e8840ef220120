// Package verify runs read-only consistency checks against a migrated database
package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jkdp/printshop-migrate/internal/database/schema"
	"github.com/jkdp/printshop-migrate/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Kind decides how a check outcome is judged
type Kind int

const (
	// KindInfo checks report a count and never fail
	KindInfo Kind = iota
	// KindZero checks fail when the count is not zero
	KindZero
	// KindConstraint checks run a statement the schema must reject
	KindConstraint
)

// Check is one entry of the verification catalogue
type Check struct {
	Name        string
	Description string
	Kind        Kind

	query sq.Sqlizer
	exec  func(ctx context.Context, db *sql.DB) (string, error)
}

// Catalogue returns every check for a fully migrated database, in report order
func Catalogue() []Check {
	var checks []Check

	for _, t := range schema.CurrentTables() {
		checks = append(checks, Check{
			Name:        "rows/" + t.Name,
			Description: "rows in " + t.Name,
			Kind:        KindInfo,
			query:       psql.Select("COUNT(*)").From(t.Name),
		})
	}

	for _, ref := range schema.CurrentReferences() {
		checks = append(checks, Check{
			Name:        fmt.Sprintf("orphans/%s.%s", ref.Table, ref.Column),
			Description: fmt.Sprintf("%s.%s values without a %s row", ref.Table, ref.Column, ref.RefTable),
			Kind:        KindZero,
			query:       orphanQuery(ref),
		})
	}

	for _, entity := range domain.HumanIDEntities {
		checks = append(checks,
			Check{
				Name:        "human_id/missing/" + entity.Table,
				Description: entity.Table + " rows without a human id",
				Kind:        KindZero,
				query: psql.Select("COUNT(*)").From(entity.Table).
					Where(sq.NotEq{"business_id": nil}).
					Where(sq.Eq{"human_id": nil}),
			},
			Check{
				Name:        "human_id/duplicates/" + entity.Table,
				Description: entity.Table + " human ids used more than once per business",
				Kind:        KindZero,
				query:       duplicateHumanIDQuery(entity.Table),
			},
		)
	}

	checks = append(checks,
		Check{
			Name:        "users/without_roles",
			Description: "users without any role assignment",
			Kind:        KindZero,
			query: psql.Select("COUNT(*)").From("users AS u").
				Where("NOT EXISTS (SELECT 1 FROM user_roles AS ur WHERE ur.user_id = u.id)"),
		},
		Check{
			Name:        "users/unknown_primary_role",
			Description: "users whose primary_role is not a system role",
			Kind:        KindZero,
			query: psql.Select("COUNT(*)").From("users").
				Where("primary_role <> ALL(?::text[])", pq.Array(domain.SystemRoleNames())),
		},
		Check{
			Name:        "payments/invoice_fk",
			Description: "payments cannot point at a missing invoice",
			Kind:        KindConstraint,
			exec:        rejectsOrphanPayment,
		},
	)

	return checks
}

func orphanQuery(ref schema.Reference) sq.SelectBuilder {
	return psql.Select("COUNT(*)").From(ref.Table + " AS c").
		Where(sq.NotEq{"c." + ref.Column: nil}).
		Where(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS p WHERE p.id = c.%s)", ref.RefTable, ref.Column))
}

func duplicateHumanIDQuery(table string) sq.SelectBuilder {
	dups := psql.Select("business_id", "human_id").From(table).
		Where(sq.NotEq{"human_id": nil}).
		GroupBy("business_id", "human_id").
		Having("COUNT(*) > 1")
	return psql.Select("COUNT(*)").FromSelect(dups, "d")
}

const foreignKeyViolation = "23503"

// rejectsOrphanPayment inserts a payment for an invoice that cannot exist
// and expects the foreign key to reject it. The transaction is always rolled back.
func rejectsOrphanPayment(ctx context.Context, db *sql.DB) (string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to start constraint transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	invoiceID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (invoice_id, legacy_id) VALUES ($1, $2)`,
		invoiceID, "verify-constraint:"+invoiceID.String())
	if err == nil {
		return "", errOrphanAccepted
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return "rejected with " + foreignKeyViolation, nil
	}
	return "", fmt.Errorf("constraint insert failed unexpectedly: %w", err)
}

var errOrphanAccepted = errors.New("insert of a payment for a missing invoice was accepted")
