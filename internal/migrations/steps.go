package migrations

import (
	"context"
	"fmt"
)

// step is one statement of a migration, logged as it runs
type step struct {
	name  string
	query string
	args  []interface{}
}

// execSteps runs the statements in order and stops at the first failure
func execSteps(ctx context.Context, db DBExecutor, steps []step) error {
	log := LoggerFromContext(ctx)
	for i, s := range steps {
		result, err := db.ExecContext(ctx, s.query, s.args...)
		if err != nil {
			return &StepError{Step: s.name, Err: err}
		}

		entry := log.WithField("step", fmt.Sprintf("%d/%d", i+1, len(steps)))
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			entry = entry.WithField("rows", affected)
		}
		entry.Debug(s.name)
	}
	return nil
}

// countQuery runs a single-value COUNT query
func countQuery(ctx context.Context, db DBExecutor, query string, args ...interface{}) (int64, error) {
	var count int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// expectZero fails verification when the query returns a non-zero count
func expectZero(ctx context.Context, db DBExecutor, check, query string, args ...interface{}) error {
	count, err := countQuery(ctx, db, query, args...)
	if err != nil {
		return fmt.Errorf("failed to run check %q: %w", check, err)
	}
	if count != 0 {
		return &ErrVerificationFailed{Check: check, Expected: 0, Actual: count}
	}
	return nil
}
