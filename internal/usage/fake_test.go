package usage

import (
	"context"
	"errors"
	"sync"

	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory backend that records every write.
type fakeBackend struct {
	mu       sync.Mutex
	nextID   int64
	machines []capacity.Machine
	usages   []capacity.UsageRecord
	jobs     []capacity.Job

	upserts []backend.UsageWrite
	flags   []backend.FlagWrite

	failUpsert    map[int64]error // by machine id
	failCreateJob error
	failList      error

	// gates block GetUsages for a day until the channel is closed.
	gates   map[datekey.Key]chan struct{}
	entered chan datekey.Key
}

func newFakeBackend(machines ...capacity.Machine) *fakeBackend {
	return &fakeBackend{
		nextID:     100,
		machines:   machines,
		failUpsert: map[int64]error{},
		gates:      map[datekey.Key]chan struct{}{},
		entered:    make(chan datekey.Key, 4),
	}
}

func (f *fakeBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeBackend) seedUsage(u capacity.UsageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usages = append(f.usages, u)
}

func (f *fakeBackend) seedJob(j capacity.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
}

func (f *fakeBackend) upsertCalls() []backend.UsageWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.UsageWrite(nil), f.upserts...)
}

func (f *fakeBackend) storedUsage(machineID int64, date datekey.Key) (capacity.UsageRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.usages {
		if u.MachineID == machineID && u.Date == date {
			return u, true
		}
	}
	return capacity.UsageRecord{}, false
}

func (f *fakeBackend) ListMachines(ctx context.Context) ([]capacity.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	return append([]capacity.Machine(nil), f.machines...), nil
}

func (f *fakeBackend) GetUsages(ctx context.Context, date datekey.Key) ([]capacity.UsageRecord, error) {
	f.mu.Lock()
	gate := f.gates[date]
	f.mu.Unlock()
	if gate != nil {
		f.entered <- date
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capacity.UsageRecord
	for _, u := range f.usages {
		if u.Date == date {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetJobs(ctx context.Context, date datekey.Key) ([]capacity.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capacity.Job
	for _, j := range f.jobs {
		if j.Date == date {
			out = append(out, j)
		}
	}
	return out, nil
}

// row returns the index of the usage row a write targets, mirroring the
// backend's upsert: by id first, then by (machine, date).
func (f *fakeBackend) row(id, machineID int64, date datekey.Key) int {
	for i, u := range f.usages {
		if got, ok := u.Identity.ID(); ok && got == id {
			return i
		}
	}
	for i, u := range f.usages {
		if u.MachineID == machineID && u.Date == date {
			return i
		}
	}
	return -1
}

func (f *fakeBackend) UpsertUsage(ctx context.Context, w backend.UsageWrite) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, w)
	if err := f.failUpsert[w.MachineID]; err != nil {
		return 0, err
	}
	i := f.row(w.ID, w.MachineID, w.Date)
	if i < 0 {
		f.usages = append(f.usages, capacity.UsageRecord{
			Identity:  capacity.Saved(f.id()),
			MachineID: w.MachineID,
			Date:      w.Date,
		})
		i = len(f.usages) - 1
	}
	f.usages[i].UnitsUsed = w.UnitsUsed
	id, _ := f.usages[i].Identity.ID()
	return id, nil
}

func (f *fakeBackend) SetDerivedFlag(ctx context.Context, w backend.FlagWrite) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, w)
	i := f.row(w.ID, w.MachineID, w.Date)
	if i < 0 {
		f.usages = append(f.usages, capacity.UsageRecord{
			Identity:  capacity.Saved(f.id()),
			MachineID: w.MachineID,
			Date:      w.Date,
		})
		i = len(f.usages) - 1
	}
	f.usages[i].DerivedFromJobs = w.Derived
	id, _ := f.usages[i].Identity.ID()
	return id, nil
}

func (f *fakeBackend) CreateJob(ctx context.Context, job capacity.Job) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateJob != nil {
		return 0, f.failCreateJob
	}
	job.ID = f.id()
	f.jobs = append(f.jobs, job)
	return job.ID, nil
}

func (f *fakeBackend) UpdateJob(ctx context.Context, job capacity.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].ID != job.ID {
			continue
		}
		if job.MachineID == 0 {
			job.MachineID = f.jobs[i].MachineID
		} else if !f.hasMachine(job.MachineID) {
			return capacity.ErrNotFound
		}
		job.Date = f.jobs[i].Date
		f.jobs[i] = job
		return nil
	}
	return capacity.ErrNotFound
}

// hasMachine reports whether id is a stored machine. Callers hold f.mu.
func (f *fakeBackend) hasMachine(id int64) bool {
	for _, m := range f.machines {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (f *fakeBackend) DeleteJob(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
			return nil
		}
	}
	return capacity.ErrNotFound
}

func (f *fakeBackend) CreateMachine(ctx context.Context, m capacity.Machine) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.id()
	f.machines = append(f.machines, m)
	return m.ID, nil
}

func (f *fakeBackend) UpdateMachine(ctx context.Context, m capacity.Machine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.machines {
		if f.machines[i].ID == m.ID {
			f.machines[i] = m
			return nil
		}
	}
	return capacity.ErrNotFound
}

func (f *fakeBackend) DeleteMachine(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.machines {
		if f.machines[i].ID == id {
			f.machines = append(f.machines[:i], f.machines[i+1:]...)
			return nil
		}
	}
	return capacity.ErrNotFound
}

func (f *fakeBackend) GetReport(ctx context.Context, start, end datekey.Key) (map[int64]float64, error) {
	return map[int64]float64{}, nil
}

var _ backend.Backend = (*fakeBackend)(nil)
