package usage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
	"github.com/signsinfo/capacity/internal/ledger"
	"github.com/signsinfo/capacity/internal/notify"
	"github.com/signsinfo/capacity/internal/utilization"
)

// BoardConfig holds configuration for a usage board.
type BoardConfig struct {
	// Backend persists machines, usages and jobs
	Backend backend.Backend

	// Guard checks the caller's capabilities (optional, nil allows everything)
	Guard *access.Guard

	// Notifier receives success and error toasts (optional)
	Notifier notify.Notifier

	// AreaUnit is the unit counted by the shop-wide figures (default: "Sq. ft.")
	AreaUnit string

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Board is the usage view of one selected day: a row per machine plus the
// day's job ledger. It is safe for concurrent use. The lock is held only
// around in-memory state, never across backend calls.
//
// Every Load starts a new generation. A backend response that belongs to an
// older generation is not applied to the current view.
type Board struct {
	backend  backend.Backend
	guard    *access.Guard
	notifier notify.Notifier
	areaUnit string
	logFn    func(level, msg string)

	mu     sync.Mutex
	gen    uint64
	loaded bool
	day    datekey.Key
	rows   []Row
	jobs   *ledger.Ledger
}

// NewBoard creates an empty board. Call Load before anything else.
func NewBoard(cfg BoardConfig) *Board {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	areaUnit := cfg.AreaUnit
	if areaUnit == "" {
		areaUnit = utilization.AreaUnit
	}
	return &Board{
		backend:  cfg.Backend,
		guard:    cfg.Guard,
		notifier: notifier,
		areaUnit: areaUnit,
		logFn:    cfg.LogFn,
		jobs:     ledger.New(nil),
	}
}

// Load selects day: it fetches machines, usages and jobs, composes the rows
// and derives the derive-enabled ones locally. Nothing is pushed. If another
// Load starts before this one finishes, the result is discarded and
// ErrStaleView is returned.
func (b *Board) Load(ctx context.Context, day datekey.Key) error {
	if err := b.guard.Require(ctx, access.ViewUsage); err != nil {
		return err
	}
	if !day.Valid() {
		return fmt.Errorf("invalid day %q", day)
	}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.mu.Unlock()

	machines, err := b.backend.ListMachines(ctx)
	if err != nil {
		return b.failed(ctx, day, 0, fmt.Errorf("list machines: %w", err))
	}
	usages, err := b.backend.GetUsages(ctx, day)
	if err != nil {
		return b.failed(ctx, day, 0, fmt.Errorf("get usages for %s: %w", day, err))
	}
	jobs, err := b.backend.GetJobs(ctx, day)
	if err != nil {
		return b.failed(ctx, day, 0, fmt.Errorf("get jobs for %s: %w", day, err))
	}

	rows := Compose(machines, usages, day)
	l := ledger.New(jobs)
	Derive(rows, l)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		b.log("debug", fmt.Sprintf("usage board: discarding load of %s", day))
		return capacity.ErrStaleView
	}
	b.day = day
	b.rows = rows
	b.jobs = l
	b.loaded = true
	return nil
}

// Day returns the selected day.
func (b *Board) Day() (datekey.Key, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.day, b.loaded
}

// Rows returns a snapshot of the board's rows in machine order.
func (b *Board) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Row, len(b.rows))
	copy(out, b.rows)
	return out
}

// Row returns the row for machineID.
func (b *Board) Row(machineID int64) (Row, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.rowIndex(machineID); i >= 0 {
		return b.rows[i], true
	}
	return Row{}, false
}

// Jobs returns the day's jobs.
func (b *Board) Jobs() []capacity.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs.Jobs()
}

// JobsFor returns the day's jobs for one machine.
func (b *Board) JobsFor(machineID int64) []capacity.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobs.ForMachine(machineID)
}

// ShopWide returns the capacity-weighted utilization of the area machines.
func (b *Board) ShopWide() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return utilization.ShopWide(Entries(b.rows), b.areaUnit)
}

// TotalUnits returns the area produced by the area machines.
func (b *Board) TotalUnits() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return utilization.TotalUnits(Entries(b.rows), b.areaUnit)
}

// SetManual stores a manually entered usage value for a machine that is not
// derived from jobs.
func (b *Board) SetManual(ctx context.Context, machineID int64, units float64) error {
	if err := b.guard.Require(ctx, access.EditUsage); err != nil {
		return err
	}
	if units < 0 || math.IsNaN(units) || math.IsInf(units, 0) {
		return capacity.ErrNegativeUsage
	}

	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return capacity.ErrNotLoaded
	}
	i := b.rowIndex(machineID)
	if i < 0 {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", machineID, capacity.ErrUnknownMachine)
	}
	u := b.rows[i].Usage
	if u.DerivedFromJobs {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", machineID, capacity.ErrDerivedUsage)
	}
	gen, day := b.gen, b.day
	b.mu.Unlock()

	id, err := b.backend.UpsertUsage(ctx, backend.UsageWrite{
		ID:        u.Identity.WireID(),
		MachineID: machineID,
		Date:      day,
		UnitsUsed: units,
	})
	if err != nil {
		return b.failed(ctx, day, machineID, fmt.Errorf("update usage: %w", err))
	}

	b.apply(gen, func() {
		i := b.rowIndex(machineID)
		if i < 0 {
			return
		}
		row := &b.rows[i]
		row.Usage.Identity = row.Usage.Identity.Promote(id)
		if !row.Usage.DerivedFromJobs {
			row.Usage.UnitsUsed = units
		}
	})
	b.succeeded(ctx, day, machineID, "Usage updated.")
	return nil
}

// SetDerived switches a machine between manual and job-derived usage.
// Turning derivation on recomputes the value from the jobs and pushes it;
// turning it off keeps the last value as the manual one.
func (b *Board) SetDerived(ctx context.Context, machineID int64, derived bool) error {
	if err := b.guard.Require(ctx, access.EditUsage); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return capacity.ErrNotLoaded
	}
	i := b.rowIndex(machineID)
	if i < 0 {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", machineID, capacity.ErrUnknownMachine)
	}
	u := b.rows[i].Usage
	gen, day := b.gen, b.day
	b.mu.Unlock()

	id, err := b.backend.SetDerivedFlag(ctx, backend.FlagWrite{
		ID:        u.Identity.WireID(),
		MachineID: machineID,
		Date:      day,
		Derived:   derived,
	})
	if err != nil {
		return b.failed(ctx, day, machineID, fmt.Errorf("set derived flag: %w", err))
	}

	applied := b.apply(gen, func() {
		i := b.rowIndex(machineID)
		if i < 0 {
			return
		}
		row := &b.rows[i]
		row.Usage.Identity = row.Usage.Identity.Promote(id)
		row.Usage.DerivedFromJobs = derived
		if derived {
			row.Usage.UnitsUsed = b.jobs.Units(machineID)
		}
	})
	b.succeeded(ctx, day, machineID, "Usage updated.")

	if applied && derived {
		if _, err := b.push(ctx, ForMachine(machineID)); err != nil {
			return b.failed(ctx, day, machineID, fmt.Errorf("push derived usage: %w", err))
		}
	}
	return nil
}

// AddJob records a job for a machine on the selected day and pushes the
// machine's derived usage. The returned job carries the backend id. If the
// push fails the job still stands and the push error is returned.
func (b *Board) AddJob(ctx context.Context, job capacity.Job) (capacity.Job, error) {
	if err := b.guard.Require(ctx, access.EditJobs); err != nil {
		return job, err
	}
	if err := job.Validate(); err != nil {
		return job, err
	}

	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return job, capacity.ErrNotLoaded
	}
	if b.rowIndex(job.MachineID) < 0 {
		b.mu.Unlock()
		return job, fmt.Errorf("machine %d: %w", job.MachineID, capacity.ErrUnknownMachine)
	}
	job.Date = b.day
	gen, day := b.gen, b.day
	b.mu.Unlock()

	id, err := b.backend.CreateJob(ctx, job)
	if err != nil {
		return job, b.failed(ctx, day, job.MachineID, fmt.Errorf("add job: %w", err))
	}
	job.ID = id

	applied := b.apply(gen, func() {
		b.jobs.Add(job)
		Derive(b.rows, b.jobs)
	})
	b.succeeded(ctx, day, job.MachineID, "Job added.")

	if applied {
		if _, err := b.push(ctx, ForMachine(job.MachineID)); err != nil {
			return job, b.failed(ctx, day, job.MachineID, fmt.Errorf("job added, usage push failed: %w", err))
		}
	}
	return job, nil
}

// UpdateJob replaces a job's name, quantity and dimensions. A zero MachineID
// keeps the job on its machine. Both the old and new machine are pushed.
func (b *Board) UpdateJob(ctx context.Context, job capacity.Job) error {
	if err := b.guard.Require(ctx, access.EditJobs); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return capacity.ErrNotLoaded
	}
	prev, ok := b.jobs.Get(job.ID)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("job %d: %w", job.ID, capacity.ErrUnknownJob)
	}
	if job.MachineID == 0 {
		job.MachineID = prev.MachineID
	}
	if b.rowIndex(job.MachineID) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", job.MachineID, capacity.ErrUnknownMachine)
	}
	job.Date = prev.Date
	gen, day := b.gen, b.day
	b.mu.Unlock()

	if err := b.backend.UpdateJob(ctx, job); err != nil {
		return b.failed(ctx, day, job.MachineID, fmt.Errorf("update job: %w", err))
	}

	applied := b.apply(gen, func() {
		b.jobs.Replace(job)
		Derive(b.rows, b.jobs)
	})
	b.succeeded(ctx, day, job.MachineID, "Job updated.")

	if applied {
		touched := func(r Row) bool {
			return r.Machine.ID == job.MachineID || r.Machine.ID == prev.MachineID
		}
		if _, err := b.push(ctx, touched); err != nil {
			return b.failed(ctx, day, job.MachineID, fmt.Errorf("job updated, usage push failed: %w", err))
		}
	}
	return nil
}

// DeleteJob removes a job and pushes its machine's derived usage.
func (b *Board) DeleteJob(ctx context.Context, id int64) error {
	if err := b.guard.Require(ctx, access.EditJobs); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return capacity.ErrNotLoaded
	}
	job, ok := b.jobs.Get(id)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("job %d: %w", id, capacity.ErrUnknownJob)
	}
	gen, day := b.gen, b.day
	b.mu.Unlock()

	if err := b.backend.DeleteJob(ctx, id); err != nil {
		return b.failed(ctx, day, job.MachineID, fmt.Errorf("delete job: %w", err))
	}

	applied := b.apply(gen, func() {
		b.jobs.Remove(id)
		Derive(b.rows, b.jobs)
	})
	b.succeeded(ctx, day, job.MachineID, "Job deleted.")

	if applied {
		if _, err := b.push(ctx, ForMachine(job.MachineID)); err != nil {
			return b.failed(ctx, day, job.MachineID, fmt.Errorf("job deleted, usage push failed: %w", err))
		}
	}
	return nil
}

// AddMachine creates a machine. When a day is loaded the machine joins the
// board with a transient zero usage.
func (b *Board) AddMachine(ctx context.Context, m capacity.Machine) (capacity.Machine, error) {
	if err := b.guard.Require(ctx, access.EditMachine); err != nil {
		return m, err
	}
	if strings.TrimSpace(m.Name) == "" {
		return m, capacity.ErrInvalidMachine
	}

	b.mu.Lock()
	gen, day := b.gen, b.day
	b.mu.Unlock()

	id, err := b.backend.CreateMachine(ctx, m)
	if err != nil {
		return m, b.failed(ctx, day, 0, fmt.Errorf("add machine: %w", err))
	}
	m.ID = id

	b.apply(gen, func() {
		if !b.loaded || b.rowIndex(id) >= 0 {
			return
		}
		b.rows = append(b.rows, Row{Machine: m, Usage: capacity.NewTransientUsage(id, b.day)})
	})
	b.succeeded(ctx, day, id, "Machine added.")
	return m, nil
}

// UpdateMachine replaces a machine's name, capacity and unit.
func (b *Board) UpdateMachine(ctx context.Context, m capacity.Machine) error {
	if err := b.guard.Require(ctx, access.EditMachine); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return capacity.ErrInvalidMachine
	}

	b.mu.Lock()
	if b.loaded && b.rowIndex(m.ID) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", m.ID, capacity.ErrUnknownMachine)
	}
	gen, day := b.gen, b.day
	b.mu.Unlock()

	if err := b.backend.UpdateMachine(ctx, m); err != nil {
		return b.failed(ctx, day, m.ID, fmt.Errorf("update machine: %w", err))
	}

	b.apply(gen, func() {
		if i := b.rowIndex(m.ID); i >= 0 {
			b.rows[i].Machine = m
		}
	})
	b.succeeded(ctx, day, m.ID, "Machine updated.")
	return nil
}

// DeleteMachine removes a machine. Its row and jobs leave the board.
func (b *Board) DeleteMachine(ctx context.Context, id int64) error {
	if err := b.guard.Require(ctx, access.EditMachine); err != nil {
		return err
	}

	b.mu.Lock()
	if b.loaded && b.rowIndex(id) < 0 {
		b.mu.Unlock()
		return fmt.Errorf("machine %d: %w", id, capacity.ErrUnknownMachine)
	}
	gen, day := b.gen, b.day
	b.mu.Unlock()

	if err := b.backend.DeleteMachine(ctx, id); err != nil {
		return b.failed(ctx, day, id, fmt.Errorf("delete machine: %w", err))
	}

	b.apply(gen, func() {
		if i := b.rowIndex(id); i >= 0 {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
		}
		b.jobs.RemoveMachine(id)
	})
	b.succeeded(ctx, day, id, "Machine deleted.")
	return nil
}

// Reconcile pushes every derive-enabled row of the selected day and returns
// how many rows were pushed.
func (b *Board) Reconcile(ctx context.Context) (int, error) {
	if err := b.guard.Require(ctx, access.EditUsage); err != nil {
		return 0, err
	}
	return b.push(ctx, nil)
}

// push re-derives the board, upserts the selected derived rows and promotes
// the identities the backend returned.
func (b *Board) push(ctx context.Context, only Filter) (int, error) {
	b.mu.Lock()
	if !b.loaded {
		b.mu.Unlock()
		return 0, capacity.ErrNotLoaded
	}
	Derive(b.rows, b.jobs)
	rows := make([]Row, len(b.rows))
	copy(rows, b.rows)
	gen, day := b.gen, b.day
	b.mu.Unlock()

	n := 0
	for _, r := range rows {
		if r.Usage.DerivedFromJobs && (only == nil || only(r)) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}

	pushed, err := Reconcile(ctx, b.backend, day, rows, only)

	b.apply(gen, func() {
		for _, r := range pushed {
			id, ok := r.Usage.Identity.ID()
			if !ok {
				continue
			}
			if i := b.rowIndex(r.Machine.ID); i >= 0 {
				b.rows[i].Usage.Identity = b.rows[i].Usage.Identity.Promote(id)
			}
		}
	})
	return n, err
}

// apply runs fn under the lock if gen is still the current generation.
func (b *Board) apply(gen uint64, fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		b.log("debug", "usage board: discarding response for a previous view")
		return false
	}
	fn()
	return true
}

// rowIndex must be called with b.mu held.
func (b *Board) rowIndex(machineID int64) int {
	for i := range b.rows {
		if b.rows[i].Machine.ID == machineID {
			return i
		}
	}
	return -1
}

func (b *Board) succeeded(ctx context.Context, day datekey.Key, machineID int64, detail string) {
	b.emit(ctx, notify.SeveritySuccess, detail, day, machineID)
}

func (b *Board) failed(ctx context.Context, day datekey.Key, machineID int64, err error) error {
	b.log("warning", fmt.Sprintf("usage board: %v", err))
	b.emit(ctx, notify.SeverityError, err.Error(), day, machineID)
	return err
}

func (b *Board) emit(ctx context.Context, sev notify.Severity, detail string, day datekey.Key, machineID int64) {
	e := notify.NewEvent(sev, detail)
	e.Date = day.String()
	e.MachineID = machineID
	if err := b.notifier.Notify(ctx, e); err != nil {
		b.log("warning", fmt.Sprintf("usage board: notify failed: %v", err))
	}
}

func (b *Board) log(level, msg string) {
	if b.logFn != nil {
		b.logFn(level, msg)
	}
}
