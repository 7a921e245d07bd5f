// Package ledger holds the jobs recorded for one day and answers "jobs for
// machine X" and "units produced by machine X" for the usage aggregator.
package ledger

import (
	"github.com/signsinfo/capacity/internal/capacity"
)

// Ledger is the set of jobs for a single day. It is not safe for concurrent
// use; the usage board serializes access.
type Ledger struct {
	jobs []capacity.Job
}

// New returns a ledger holding a copy of jobs.
func New(jobs []capacity.Job) *Ledger {
	l := &Ledger{jobs: make([]capacity.Job, len(jobs))}
	copy(l.jobs, jobs)
	return l
}

// Jobs returns a copy of all jobs in insertion order.
func (l *Ledger) Jobs() []capacity.Job {
	out := make([]capacity.Job, len(l.jobs))
	copy(out, l.jobs)
	return out
}

// Len returns the number of jobs.
func (l *Ledger) Len() int {
	return len(l.jobs)
}

// ForMachine returns the jobs assigned to machineID.
func (l *Ledger) ForMachine(machineID int64) []capacity.Job {
	var out []capacity.Job
	for _, j := range l.jobs {
		if j.MachineID == machineID {
			out = append(out, j)
		}
	}
	return out
}

// Units sums the units of every job assigned to machineID. A machine without
// jobs yields exactly 0.
func (l *Ledger) Units(machineID int64) float64 {
	total := 0.0
	for _, j := range l.jobs {
		if j.MachineID == machineID {
			total += j.Units()
		}
	}
	return total
}

// Get returns the job with the given id.
func (l *Ledger) Get(id int64) (capacity.Job, bool) {
	for _, j := range l.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return capacity.Job{}, false
}

// Add appends a job.
func (l *Ledger) Add(j capacity.Job) {
	l.jobs = append(l.jobs, j)
}

// Replace swaps the job with the same id. It reports whether one was found.
func (l *Ledger) Replace(j capacity.Job) bool {
	for i := range l.jobs {
		if l.jobs[i].ID == j.ID {
			l.jobs[i] = j
			return true
		}
	}
	return false
}

// Remove deletes the job with the given id and returns it.
func (l *Ledger) Remove(id int64) (capacity.Job, bool) {
	for i, j := range l.jobs {
		if j.ID == id {
			l.jobs = append(l.jobs[:i], l.jobs[i+1:]...)
			return j, true
		}
	}
	return capacity.Job{}, false
}

// RemoveMachine drops every job assigned to machineID.
func (l *Ledger) RemoveMachine(machineID int64) {
	kept := l.jobs[:0]
	for _, j := range l.jobs {
		if j.MachineID != machineID {
			kept = append(kept, j)
		}
	}
	l.jobs = kept
}
