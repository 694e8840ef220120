package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jkdp/printshop-migrate/pkg/logger"
)

const defaultConcurrency = 4

// Runner executes checks against a database
type Runner struct {
	db          *sql.DB
	logger      logger.Logger
	concurrency int
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of checks running at once
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner creates a check runner
func NewRunner(db *sql.DB, logger logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:          db,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the checks concurrently and reports them in the order given.
// A check that cannot run is reported with StatusError; only a cancelled
// context aborts the run.
func (r *Runner) Run(ctx context.Context, checks []Check) (*Report, error) {
	results := make([]Result, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			result := r.runCheck(gctx, check)
			result.Duration = time.Since(start)
			results[i] = r.logResult(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := newReport(results)
	r.logger.WithFields(map[string]interface{}{
		"checks": len(report.Results),
		"failed": report.Failed,
	}).Info("Verification finished")
	return report, nil
}

func (r *Runner) runCheck(ctx context.Context, check Check) Result {
	result := Result{Name: check.Name, Description: check.Description}

	if check.Kind == KindConstraint {
		detail, err := check.exec(ctx, r.db)
		switch {
		case errors.Is(err, errOrphanAccepted):
			result.Status = StatusFail
			result.Detail = err.Error()
		case err != nil:
			result.Status = StatusError
			result.Detail = err.Error()
		default:
			result.Status = StatusPass
			result.Detail = detail
		}
		return result
	}

	query, args, err := check.query.ToSql()
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}
	result.Count = &count

	switch {
	case check.Kind == KindInfo:
		result.Status = StatusInfo
	case count == 0:
		result.Status = StatusPass
	default:
		result.Status = StatusFail
		result.Detail = fmt.Sprintf("expected 0, found %d", count)
	}
	return result
}

func (r *Runner) logResult(result Result) Result {
	entry := r.logger.WithField("check", result.Name).WithField("status", result.Status)
	if result.Count != nil {
		entry = entry.WithField("count", *result.Count)
	}
	switch result.Status {
	case StatusFail, StatusError:
		entry.Warn(result.Detail)
	default:
		entry.Debug("Check finished")
	}
	return result
}
