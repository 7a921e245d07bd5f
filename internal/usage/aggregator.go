// Package usage derives and reconciles the per-machine-per-day usage records
// shown on the capacity board.
//
// A usage is either entered manually or derived from the day's jobs. Derived
// usages are recomputed locally whenever jobs change, and pushed to the
// backend only when the caller asks for it (after a job or flag change, or
// on an explicit reconcile), never on plain reads.
package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
	"github.com/signsinfo/capacity/internal/ledger"
	"github.com/signsinfo/capacity/internal/utilization"
)

// Row pairs a machine with its usage for the day.
type Row struct {
	Machine capacity.Machine
	Usage   capacity.UsageRecord
}

// Utilization returns the row's usage ratio. ok is false for machines
// without a positive capacity.
func (r Row) Utilization() (float64, bool) {
	return utilization.Ratio(r.Usage.UnitsUsed, r.Machine.Capacity)
}

// Compose returns one row per machine, in machine order. Machines without a
// stored usage get a transient zero record.
func Compose(machines []capacity.Machine, usages []capacity.UsageRecord, date datekey.Key) []Row {
	byMachine := make(map[int64]capacity.UsageRecord, len(usages))
	for _, u := range usages {
		if _, dup := byMachine[u.MachineID]; dup {
			continue
		}
		byMachine[u.MachineID] = u
	}

	rows := make([]Row, 0, len(machines))
	for _, m := range machines {
		u, ok := byMachine[m.ID]
		if !ok {
			u = capacity.NewTransientUsage(m.ID, date)
		}
		if u.Date == "" {
			u.Date = date
		}
		rows = append(rows, Row{Machine: m, Usage: u})
	}
	return rows
}

// Derive recomputes every derive-enabled row from the ledger. Manual rows
// are left untouched.
func Derive(rows []Row, jobs *ledger.Ledger) {
	for i := range rows {
		if rows[i].Usage.DerivedFromJobs {
			rows[i].Usage.UnitsUsed = jobs.Units(rows[i].Machine.ID)
		}
	}
}

// Filter selects the rows a reconciliation touches. A nil Filter selects
// every row.
type Filter func(Row) bool

// ForMachine selects the row of a single machine.
func ForMachine(machineID int64) Filter {
	return func(r Row) bool { return r.Machine.ID == machineID }
}

// Reconcile pushes every selected derive-enabled row of day with one upsert
// each and returns a copy of rows with the identities the backend assigned.
// A row whose push fails keeps its previous identity and value; failures are
// joined.
func Reconcile(ctx context.Context, be backend.Backend, day datekey.Key, rows []Row, only Filter) ([]Row, error) {
	out := make([]Row, len(rows))
	copy(out, rows)

	var errs []error
	for i := range out {
		u := out[i].Usage
		if !u.DerivedFromJobs || (only != nil && !only(out[i])) {
			continue
		}
		id, err := be.UpsertUsage(ctx, backend.UsageWrite{
			ID:        u.Identity.WireID(),
			MachineID: out[i].Machine.ID,
			Date:      day,
			UnitsUsed: u.UnitsUsed,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("machine %d: %w", out[i].Machine.ID, err))
			continue
		}
		out[i].Usage.Identity = u.Identity.Promote(id)
	}
	return out, errors.Join(errs...)
}

// Entries converts rows for the utilization calculator.
func Entries(rows []Row) []utilization.Entry {
	entries := make([]utilization.Entry, len(rows))
	for i, r := range rows {
		entries[i] = utilization.Entry{
			MachineID: r.Machine.ID,
			Unit:      r.Machine.Unit,
			Capacity:  r.Machine.Capacity,
			UnitsUsed: r.Usage.UnitsUsed,
		}
	}
	return entries
}
