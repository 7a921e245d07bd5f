package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/signsinfo/capacity/internal/datekey"
)

// ReconcilerConfig holds configuration for the background reconciler.
type ReconcilerConfig struct {
	// Board is the view reloaded and reconciled on every cycle
	Board *Board

	// Interval between reconcile cycles (default: 5m)
	Interval time.Duration

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Reconciler periodically reloads today's board and pushes its derived
// usages, so a day whose jobs changed elsewhere converges at the backend.
type Reconciler struct {
	board    *Board
	interval time.Duration
	now      func() time.Time
	logFn    func(level, msg string)
}

// NewReconciler creates a new usage reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	interval := cfg.Interval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		board:    cfg.Board,
		interval: interval,
		now:      now,
		logFn:    cfg.LogFn,
	}
}

// Start runs one cycle immediately, then one per interval until the context
// is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconcile cycle. Exported for testing.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	day := datekey.Of(r.now())
	if err := r.board.Load(ctx, day); err != nil {
		r.log("warning", fmt.Sprintf("usage reconcile: load %s failed: %v", day, err))
		return err
	}

	n, err := r.board.Reconcile(ctx)
	if err != nil {
		r.log("warning", fmt.Sprintf("usage reconcile: push for %s failed: %v", day, err))
		return err
	}
	if n > 0 {
		r.log("info", fmt.Sprintf("usage reconcile: pushed %d derived usages for %s", n, day))
	}
	return nil
}

func (r *Reconciler) log(level, msg string) {
	if r.logFn != nil {
		r.logFn(level, msg)
	}
}
