package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "capacity_test.db")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedMachine(t *testing.T, store *Store, name string, capacityVal float64, unit string) int64 {
	t.Helper()
	id, err := store.CreateMachine(context.Background(), capacity.Machine{Name: name, Capacity: capacityVal, Unit: unit})
	if err != nil {
		t.Fatalf("CreateMachine(%s): %v", name, err)
	}
	return id
}

func TestOpenStoreCreatesFile(t *testing.T) {
	path := tempDBPath(t)
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file should exist after OpenStore")
	}
}

func TestMachineCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id := seedMachine(t, store, "Latex 800", 400, "Sq. ft.")
	if id == 0 {
		t.Fatal("CreateMachine should return an id")
	}

	if err := store.UpdateMachine(ctx, capacity.Machine{ID: id, Name: "Latex 800W", Capacity: 450, Unit: "Sq. ft."}); err != nil {
		t.Fatalf("UpdateMachine: %v", err)
	}

	machines, err := store.ListMachines(ctx)
	if err != nil {
		t.Fatalf("ListMachines: %v", err)
	}
	if len(machines) != 1 || machines[0].Name != "Latex 800W" || machines[0].Capacity != 450 {
		t.Errorf("machines = %+v", machines)
	}

	if err := store.UpdateMachine(ctx, capacity.Machine{ID: 999, Name: "ghost"}); !errors.Is(err, capacity.ErrNotFound) {
		t.Errorf("UpdateMachine(999) = %v, want ErrNotFound", err)
	}
	if _, err := store.CreateMachine(ctx, capacity.Machine{}); !errors.Is(err, capacity.ErrInvalidMachine) {
		t.Errorf("CreateMachine(no name) = %v, want ErrInvalidMachine", err)
	}
}

func TestUpsertUsageReusesRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	machineID := seedMachine(t, store, "Latex", 100, "Sq. ft.")

	first, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: machineID, Date: "2024-03-13", UnitsUsed: 10})
	if err != nil {
		t.Fatalf("first UpsertUsage: %v", err)
	}
	second, err := store.UpsertUsage(ctx, backend.UsageWrite{ID: first, MachineID: machineID, Date: "2024-03-13", UnitsUsed: 20})
	if err != nil {
		t.Fatalf("second UpsertUsage: %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %d then %d", first, second)
	}

	usages, err := store.GetUsages(ctx, "2024-03-13")
	if err != nil {
		t.Fatalf("GetUsages: %v", err)
	}
	if len(usages) != 1 {
		t.Fatalf("expected 1 usage row, got %d", len(usages))
	}
	if usages[0].UnitsUsed != 20 {
		t.Errorf("UnitsUsed = %v, want 20", usages[0].UnitsUsed)
	}
}

func TestUpsertUsageStaleZeroIDDoesNotDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	machineID := seedMachine(t, store, "Latex", 100, "Sq. ft.")

	first, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: machineID, Date: "2024-03-13", UnitsUsed: 5})
	if err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}
	// A second client that never learned the id still writes with 0.
	again, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: machineID, Date: "2024-03-13", UnitsUsed: 7})
	if err != nil {
		t.Fatalf("UpsertUsage with stale id: %v", err)
	}
	if again != first {
		t.Errorf("stale create returned id %d, want %d", again, first)
	}

	usages, _ := store.GetUsages(ctx, "2024-03-13")
	if len(usages) != 1 || usages[0].UnitsUsed != 7 {
		t.Errorf("usages = %+v, want a single row with 7 units", usages)
	}
}

func TestUpsertUsageValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	machineID := seedMachine(t, store, "Latex", 100, "Sq. ft.")

	if _, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: machineID, Date: "2024-03-13", UnitsUsed: -1}); !errors.Is(err, capacity.ErrNegativeUsage) {
		t.Errorf("negative units = %v, want ErrNegativeUsage", err)
	}
	if _, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: 404, Date: "2024-03-13", UnitsUsed: 1}); !errors.Is(err, capacity.ErrNotFound) {
		t.Errorf("unknown machine = %v, want ErrNotFound", err)
	}
	if _, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: machineID, Date: "13/03/2024", UnitsUsed: 1}); err == nil {
		t.Error("invalid date should fail")
	}
}

func TestSetDerivedFlagSharesRowWithUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	machineID := seedMachine(t, store, "Latex", 100, "Sq. ft.")

	flagID, err := store.SetDerivedFlag(ctx, backend.FlagWrite{MachineID: machineID, Date: "2024-03-13", Derived: true})
	if err != nil {
		t.Fatalf("SetDerivedFlag: %v", err)
	}
	usageID, err := store.UpsertUsage(ctx, backend.UsageWrite{ID: flagID, MachineID: machineID, Date: "2024-03-13", UnitsUsed: 24})
	if err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}
	if flagID != usageID {
		t.Errorf("flag id %d != usage id %d", flagID, usageID)
	}

	usages, _ := store.GetUsages(ctx, "2024-03-13")
	if len(usages) != 1 || !usages[0].DerivedFromJobs || usages[0].UnitsUsed != 24 {
		t.Errorf("usages = %+v", usages)
	}

	if _, err := store.SetDerivedFlag(ctx, backend.FlagWrite{ID: flagID, Derived: false}); err != nil {
		t.Fatalf("SetDerivedFlag(false): %v", err)
	}
	usages, _ = store.GetUsages(ctx, "2024-03-13")
	if usages[0].DerivedFromJobs {
		t.Error("flag should be cleared")
	}
	if usages[0].UnitsUsed != 24 {
		t.Errorf("clearing the flag changed units to %v", usages[0].UnitsUsed)
	}
}

func TestJobCRUD(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	machineID := seedMachine(t, store, "Latex", 100, "Sq. ft.")

	job := capacity.Job{MachineID: machineID, Date: "2024-03-13", Name: "banner", Qty: 2, Height: 12, Length: 12}
	id, err := store.CreateJob(ctx, job)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := store.CreateJob(ctx, capacity.Job{MachineID: machineID, Date: "2024-03-14", Name: "other day", Qty: 1, Height: 1, Length: 1}); err != nil {
		t.Fatalf("CreateJob other day: %v", err)
	}

	job.ID = id
	job.Qty = 5
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	jobs, err := store.GetJobs(ctx, "2024-03-13")
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Qty != 5 || jobs[0].Date != "2024-03-13" {
		t.Errorf("jobs = %+v", jobs)
	}

	if err := store.DeleteJob(ctx, id); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := store.DeleteJob(ctx, id); !errors.Is(err, capacity.ErrNotFound) {
		t.Errorf("second DeleteJob = %v, want ErrNotFound", err)
	}

	if _, err := store.CreateJob(ctx, capacity.Job{MachineID: machineID, Date: "2024-03-13", Qty: 1, Height: 0, Length: 1}); !errors.Is(err, capacity.ErrInvalidJob) {
		t.Errorf("invalid job = %v, want ErrInvalidJob", err)
	}
}

func TestUpdateJobMovesMachine(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	latex := seedMachine(t, store, "Latex", 100, "Sq. ft.")
	uv := seedMachine(t, store, "UV Flatbed", 80, "Sq. ft.")

	job := capacity.Job{MachineID: latex, Date: "2024-03-13", Name: "banner", Qty: 1, Height: 12, Length: 144}
	id, err := store.CreateJob(ctx, job)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job.ID = id

	tests := []struct {
		name        string
		machineID   int64
		wantMachine int64
		wantErr     error
	}{
		{name: "move to another machine", machineID: uv, wantMachine: uv},
		{name: "zero keeps the machine", machineID: 0, wantMachine: uv},
		{name: "unknown machine", machineID: 999, wantMachine: uv, wantErr: capacity.ErrNotFound},
		{name: "move back", machineID: latex, wantMachine: latex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job.MachineID = tt.machineID
			err := store.UpdateJob(ctx, job)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UpdateJob = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("UpdateJob: %v", err)
			}

			jobs, err := store.GetJobs(ctx, "2024-03-13")
			if err != nil {
				t.Fatalf("GetJobs: %v", err)
			}
			if len(jobs) != 1 || jobs[0].MachineID != tt.wantMachine {
				t.Errorf("jobs = %+v, want one job on machine %d", jobs, tt.wantMachine)
			}
		})
	}
}

func TestDeleteMachineCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	keep := seedMachine(t, store, "Keep", 100, "Sq. ft.")
	drop := seedMachine(t, store, "Drop", 100, "Sq. ft.")

	for _, id := range []int64{keep, drop} {
		if _, err := store.CreateJob(ctx, capacity.Job{MachineID: id, Date: "2024-03-13", Qty: 1, Height: 12, Length: 12}); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if _, err := store.UpsertUsage(ctx, backend.UsageWrite{MachineID: id, Date: "2024-03-13", UnitsUsed: 1}); err != nil {
			t.Fatalf("UpsertUsage: %v", err)
		}
	}

	if err := store.DeleteMachine(ctx, drop); err != nil {
		t.Fatalf("DeleteMachine: %v", err)
	}

	jobs, _ := store.GetJobs(ctx, "2024-03-13")
	usages, _ := store.GetUsages(ctx, "2024-03-13")
	if len(jobs) != 1 || jobs[0].MachineID != keep {
		t.Errorf("jobs = %+v", jobs)
	}
	if len(usages) != 1 || usages[0].MachineID != keep {
		t.Errorf("usages = %+v", usages)
	}
	if err := store.DeleteMachine(ctx, drop); !errors.Is(err, capacity.ErrNotFound) {
		t.Errorf("second DeleteMachine = %v, want ErrNotFound", err)
	}
}

func TestGetReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	a := seedMachine(t, store, "A", 100, "Sq. ft.")
	b := seedMachine(t, store, "B", 200, "Sq. ft.")
	broken := seedMachine(t, store, "Broken", 0, "Sq. ft.")
	seedMachine(t, store, "Idle", 100, "Sq. ft.")

	writes := []backend.UsageWrite{
		{MachineID: a, Date: "2024-03-11", UnitsUsed: 50},
		{MachineID: a, Date: "2024-03-12", UnitsUsed: 100},
		{MachineID: b, Date: "2024-03-12", UnitsUsed: 50},
		{MachineID: b, Date: "2024-03-20", UnitsUsed: 200}, // out of range
		{MachineID: broken, Date: "2024-03-12", UnitsUsed: 10},
	}
	for _, w := range writes {
		if _, err := store.UpsertUsage(ctx, w); err != nil {
			t.Fatalf("UpsertUsage(%+v): %v", w, err)
		}
	}

	report, err := store.GetReport(ctx, "2024-03-10", "2024-03-14")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("report = %v, want 2 machines", report)
	}
	if math.Abs(report[a]-0.75) > 1e-9 {
		t.Errorf("report[a] = %v, want 0.75", report[a])
	}
	if math.Abs(report[b]-0.25) > 1e-9 {
		t.Errorf("report[b] = %v, want 0.25", report[b])
	}
}
