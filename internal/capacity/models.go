// Package capacity holds the domain model shared by the usage engine, the
// report resolver and the persistence backends: printers, the jobs run on
// them and the per-machine-per-day usage records.
package capacity

import (
	"github.com/signsinfo/capacity/internal/datekey"
)

// SqInchesPerSqFt converts job dimensions (inches) to square feet.
const SqInchesPerSqFt = 144.0

// Machine is a printer with a rated daily capacity.
type Machine struct {
	ID       int64
	Name     string
	Capacity float64
	Unit     string // e.g. "Sq. ft."
}

// Job is a single print job assigned to a machine on a given day.
type Job struct {
	ID        int64
	MachineID int64
	Date      datekey.Key
	Name      string
	Qty       int
	Height    float64 // inches
	Length    float64 // inches
}

// Units returns the area the job contributes to its machine's usage.
func (j Job) Units() float64 {
	return float64(j.Qty) * j.Height * j.Length / SqInchesPerSqFt
}

// Validate checks the job's dimensions.
func (j Job) Validate() error {
	if j.Qty < 0 || j.Height <= 0 || j.Length <= 0 {
		return ErrInvalidJob
	}
	return nil
}

// UsageRecord is the usage of one machine on one day.
type UsageRecord struct {
	Identity        Identity
	MachineID       int64
	Date            datekey.Key
	UnitsUsed       float64
	DerivedFromJobs bool
}

// NewTransientUsage returns the zero record used when the backend has no row
// for (machineID, date).
func NewTransientUsage(machineID int64, date datekey.Key) UsageRecord {
	return UsageRecord{
		Identity:  Unsaved(),
		MachineID: machineID,
		Date:      date,
	}
}
