// Package trigger drives all time-based firing.
//
// The engine is the sole claimer of due records: a single long-lived poll
// loop owns the cadence, and every claim goes through the store's atomic
// transition so even overlapping polls within one process cannot
// double-claim a record. Dispatch is fire-and-forget per item; only the
// store claim is awaited before an item counts as owned, and a long-running
// dispatch never delays the next tick.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/dispatch"
	"github.com/perrymanuk/radbot-sub001/internal/store"
)

// Engine configuration defaults.
const (
	// DefaultPollInterval is the cadence of the due-record scan.
	DefaultPollInterval = 5 * time.Second
	// DefaultStaleThreshold is how long a reminder may sit in firing before
	// startup recovery assumes the claim died with a previous process.
	DefaultStaleThreshold = 5 * time.Minute
	// DefaultClaimLimit caps reminders claimed per tick.
	DefaultClaimLimit = 50
	// DefaultPruneRetention is how long delivered items are kept before the
	// daily prune removes them.
	DefaultPruneRetention = 7 * 24 * time.Hour
	// pruneInterval is how often the delivered-item prune runs.
	pruneInterval = 24 * time.Hour
)

// Engine periodically scans the store for due reminders and scheduled tasks
// and hands them to the dispatcher.
type Engine struct {
	store          store.Store
	dispatcher     *dispatch.Dispatcher
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	pruneRetention time.Duration
	nextPrune      time.Time
}

// NewEngine creates a trigger engine. A non-positive pollInterval falls back
// to DefaultPollInterval.
func NewEngine(st store.Store, dispatcher *dispatch.Dispatcher, pollInterval time.Duration) *Engine {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Engine{
		store:          st,
		dispatcher:     dispatcher,
		pollInterval:   pollInterval,
		staleThreshold: DefaultStaleThreshold,
		claimLimit:     DefaultClaimLimit,
		pruneRetention: DefaultPruneRetention,
		nextPrune:      time.Now().Add(pruneInterval),
	}
}

// RecoverStale requeues reminders that were claimed but never completed by a
// previous process. Should be called once at startup, before Run.
func (e *Engine) RecoverStale() error {
	staleBefore := time.Now().Add(-e.staleThreshold)
	n, err := e.store.RequeueStaleFiring(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Engine.RecoverStale: requeued stale reminders", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("Engine.Run: starting trigger engine", "pollInterval", e.pollInterval)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine.Run: stopping")
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll performs one scan. Reminders that sat due while the process was down
// are claimed here on the first tick after restart; nothing is skipped.
func (e *Engine) poll(ctx context.Context) {
	now := time.Now()

	claimed, err := e.store.ClaimDueReminders(now, e.claimLimit)
	if err != nil {
		slog.Error("Engine.poll: reminder claim failed", "error", err)
	} else {
		for _, r := range claimed {
			r := r
			go e.dispatcher.FireReminder(r)
		}
	}

	due, err := e.store.DueTasks(now)
	if err != nil {
		slog.Error("Engine.poll: due task scan failed", "error", err)
	} else {
		for _, task := range due {
			// The run is recorded synchronously so the next tick cannot see
			// the task as still due; only the execution itself is async.
			if e.dispatcher.BeginTaskRun(task, now) {
				task := task
				go e.dispatcher.ExecuteTask(ctx, task)
			}
		}
	}

	if now.After(e.nextPrune) {
		e.nextPrune = now.Add(pruneInterval)
		if _, err := e.store.PruneDelivered(now.Add(-e.pruneRetention)); err != nil {
			slog.Error("Engine.poll: prune failed", "error", err)
		}
	}
}
