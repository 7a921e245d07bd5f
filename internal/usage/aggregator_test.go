package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
	"github.com/signsinfo/capacity/internal/ledger"
)

const testDay = datekey.Key("2024-03-13")

func TestComposeSynthesizesTransientRows(t *testing.T) {
	machines := []capacity.Machine{
		{ID: 1, Name: "Latex", Capacity: 100, Unit: "Sq. ft."},
		{ID: 2, Name: "Flatbed", Capacity: 50, Unit: "Sq. ft."},
	}
	usages := []capacity.UsageRecord{
		{Identity: capacity.Saved(9), MachineID: 2, Date: testDay, UnitsUsed: 20},
	}

	rows := Compose(machines, usages, testDay)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Machine.ID != 1 || rows[1].Machine.ID != 2 {
		t.Errorf("rows not in machine order: %+v", rows)
	}

	first := rows[0].Usage
	if first.Identity.IsSaved() || first.UnitsUsed != 0 || first.DerivedFromJobs {
		t.Errorf("expected transient zero record, got %+v", first)
	}
	if first.MachineID != 1 || first.Date != testDay {
		t.Errorf("transient record not keyed to machine/day: %+v", first)
	}

	if id, _ := rows[1].Usage.Identity.ID(); id != 9 {
		t.Errorf("expected stored usage id 9, got %d", id)
	}
}

func TestComposeKeepsFirstDuplicate(t *testing.T) {
	machines := []capacity.Machine{{ID: 1, Name: "Latex", Capacity: 100}}
	usages := []capacity.UsageRecord{
		{Identity: capacity.Saved(3), MachineID: 1, Date: testDay, UnitsUsed: 10},
		{Identity: capacity.Saved(4), MachineID: 1, Date: testDay, UnitsUsed: 99},
	}
	rows := Compose(machines, usages, testDay)
	if rows[0].Usage.UnitsUsed != 10 {
		t.Errorf("expected first record to win, got %+v", rows[0].Usage)
	}
}

func TestDerive(t *testing.T) {
	rows := []Row{
		{Machine: capacity.Machine{ID: 1}, Usage: capacity.UsageRecord{MachineID: 1, DerivedFromJobs: true, UnitsUsed: 77}},
		{Machine: capacity.Machine{ID: 2}, Usage: capacity.UsageRecord{MachineID: 2, DerivedFromJobs: true, UnitsUsed: 5}},
		{Machine: capacity.Machine{ID: 3}, Usage: capacity.UsageRecord{MachineID: 3, UnitsUsed: 12}},
	}
	jobs := ledger.New([]capacity.Job{
		{ID: 1, MachineID: 1, Qty: 2, Height: 12, Length: 144},
		{ID: 2, MachineID: 1, Qty: 1, Height: 12, Length: 12},
		{ID: 3, MachineID: 3, Qty: 10, Height: 100, Length: 100},
	})

	Derive(rows, jobs)

	if rows[0].Usage.UnitsUsed != 25 {
		t.Errorf("machine 1: expected 25, got %v", rows[0].Usage.UnitsUsed)
	}
	if rows[1].Usage.UnitsUsed != 0 {
		t.Errorf("machine 2 has no jobs: expected exactly 0, got %v", rows[1].Usage.UnitsUsed)
	}
	if rows[2].Usage.UnitsUsed != 12 {
		t.Errorf("manual row must not change, got %v", rows[2].Usage.UnitsUsed)
	}
}

func TestReconcilePromotesAndJoinsFailures(t *testing.T) {
	be := newFakeBackend()
	be.failUpsert[2] = errBackendDown

	rows := []Row{
		{Machine: capacity.Machine{ID: 1}, Usage: capacity.UsageRecord{MachineID: 1, DerivedFromJobs: true, UnitsUsed: 4}},
		{Machine: capacity.Machine{ID: 2}, Usage: capacity.UsageRecord{MachineID: 2, DerivedFromJobs: true, UnitsUsed: 6}},
		{Machine: capacity.Machine{ID: 3}, Usage: capacity.UsageRecord{MachineID: 3, UnitsUsed: 8}},
	}

	out, err := Reconcile(context.Background(), be, testDay, rows, nil)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected joined backend error, got %v", err)
	}
	if !out[0].Usage.Identity.IsSaved() {
		t.Error("machine 1 should be promoted")
	}
	if out[1].Usage.Identity.IsSaved() || out[1].Usage.UnitsUsed != 6 {
		t.Errorf("failed row must be unchanged, got %+v", out[1].Usage)
	}
	if rows[0].Usage.Identity.IsSaved() {
		t.Error("input rows must not be modified")
	}

	calls := be.upsertCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 upserts (manual row skipped), got %d", len(calls))
	}
	for _, c := range calls {
		if c.Date != testDay {
			t.Errorf("upsert date = %s, want %s", c.Date, testDay)
		}
	}
}

func TestReconcileFilter(t *testing.T) {
	be := newFakeBackend()
	rows := []Row{
		{Machine: capacity.Machine{ID: 1}, Usage: capacity.UsageRecord{MachineID: 1, DerivedFromJobs: true}},
		{Machine: capacity.Machine{ID: 2}, Usage: capacity.UsageRecord{MachineID: 2, DerivedFromJobs: true}},
	}
	if _, err := Reconcile(context.Background(), be, testDay, rows, ForMachine(2)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	calls := be.upsertCalls()
	if len(calls) != 1 || calls[0].MachineID != 2 {
		t.Errorf("expected one upsert for machine 2, got %+v", calls)
	}
}
