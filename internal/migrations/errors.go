package migrations

import (
	"errors"
	"fmt"
)

// ErrDowngradeNotSupported is returned when the target is below the database version
var ErrDowngradeNotSupported = errors.New("downgrade is not supported, the migration history is forward-only")

// ErrMigrationFailed wraps the failure of one migration. The database version
// is left at the previous migration.
type ErrMigrationFailed struct {
	Version     int
	Description string
	Err         error
}

func (e *ErrMigrationFailed) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", FormatVersion(e.Version), e.Description, e.Err)
}

func (e *ErrMigrationFailed) Unwrap() error {
	return e.Err
}

// StepError names the statement of a migration that failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrVerificationFailed is returned by Verify when the migrated data is not in the expected shape
type ErrVerificationFailed struct {
	Check    string
	Expected int64
	Actual   int64
}

func (e *ErrVerificationFailed) Error() string {
	return fmt.Sprintf("verification %q failed: expected %d, got %d", e.Check, e.Expected, e.Actual)
}
