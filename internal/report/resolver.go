package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
)

// State of a Resolver.
type State int

const (
	// Selecting means no report is shown; a period is being chosen.
	Selecting State = iota
	// Resolved means the last run's result is current.
	Resolved
)

func (s State) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "selecting"
}

// Result is a resolved report.
type Result struct {
	Period   Period
	Range    Range
	Machines []capacity.Machine
	Ratios   map[int64]float64
	Summary  float64
}

// Ratio returns the ratio the backend reported for machineID.
func (r Result) Ratio(machineID int64) (float64, bool) {
	v, ok := r.Ratios[machineID]
	return v, ok
}

// ResolverConfig holds configuration for a report resolver.
type ResolverConfig struct {
	// Backend answers machine and report queries
	Backend backend.Backend

	// Guard checks the caller's capabilities (optional)
	Guard *access.Guard

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Resolver runs reports. Begin returns it to Selecting; Run moves it to
// Resolved. A run superseded by Begin or a later Run is discarded.
type Resolver struct {
	backend backend.Backend
	guard   *access.Guard
	now     func() time.Time
	logFn   func(level, msg string)

	mu     sync.Mutex
	gen    uint64
	state  State
	result Result
}

// NewResolver creates a resolver in the Selecting state.
func NewResolver(cfg ResolverConfig) *Resolver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		backend: cfg.Backend,
		guard:   cfg.Guard,
		now:     now,
		logFn:   cfg.LogFn,
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the current result. ok is false while Selecting.
func (r *Resolver) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.state == Resolved
}

// Begin re-enters Selecting and abandons any run in flight.
func (r *Resolver) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.state = Selecting
	r.result = Result{}
}

// Run resolves p, fetches the machines and the backend report for the
// range and reduces it. Invalid periods are rejected before any backend
// call.
func (r *Resolver) Run(ctx context.Context, p Period, custom *Range) (Result, error) {
	if err := r.guard.Require(ctx, access.ViewReport); err != nil {
		return Result{}, err
	}
	rng, err := Resolve(p, r.now(), custom)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	machines, err := r.backend.ListMachines(ctx)
	if err != nil {
		r.log("warning", fmt.Sprintf("report: list machines failed: %v", err))
		return Result{}, fmt.Errorf("list machines: %w", err)
	}
	ratios, err := r.backend.GetReport(ctx, rng.Start, rng.End)
	if err != nil {
		r.log("warning", fmt.Sprintf("report: %s failed: %v", rng, err))
		return Result{}, fmt.Errorf("get report %s: %w", rng, err)
	}

	res := Result{
		Period:   p,
		Range:    rng,
		Machines: machines,
		Ratios:   ratios,
		Summary:  Summary(ratios, len(machines)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		r.log("debug", fmt.Sprintf("report: discarding result for %s", rng))
		return Result{}, capacity.ErrStaleView
	}
	r.state = Resolved
	r.result = res
	return res, nil
}

func (r *Resolver) log(level, msg string) {
	if r.logFn != nil {
		r.logFn(level, msg)
	}
}
