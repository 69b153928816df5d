// Package scheduler provides cron expression evaluation for scheduled tasks.
//
// Expressions use the standard 5-field form (min, hour, dom, month, dow).
// Parsing and next-occurrence computation are delegated to robfig/cron;
// cron semantics are never hand-rolled here.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/perrymanuk/radbot-sub001/internal/models"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that expr is a parseable 5-field cron expression.
// Returns models.ErrInvalidCron (wrapped with the parse detail) if not.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidCron, err)
	}
	return nil
}

// Next computes the soonest occurrence of expr strictly after the given time.
// It is a pure function of its inputs.
func Next(expr string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrInvalidCron, err)
	}
	next := sched.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no future occurrence for %q", models.ErrInvalidCron, expr)
	}
	return next, nil
}
