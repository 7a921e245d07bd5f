// Package backend defines the contract between the usage engine and the
// persistence/API backend that stores printers, jobs and usage rows, and
// provides an HTTP client for the shop's capacity API.
//
// Architecture:
//
//	capacity CLI / board                  capacity API
//	┌─────────────┐  GET  /capacity?type=  ┌─────────────┐
//	│   backend   │ ─────────────────────▶ │  printers   │
//	│   Client    │  POST/PATCH/DELETE     │  jobs       │
//	│             │ ◀───────────────────── │  usages     │
//	└─────────────┘        JSON            └─────────────┘
package backend

import (
	"context"

	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
)

// UsageWrite upserts the units used by a machine on a day. ID 0 asks the
// backend to create the row.
type UsageWrite struct {
	ID        int64
	MachineID int64
	Date      datekey.Key
	UnitsUsed float64
}

// FlagWrite upserts the derive-from-jobs flag of a machine on a day. ID 0
// asks the backend to create the row.
type FlagWrite struct {
	ID        int64
	MachineID int64
	Date      datekey.Key
	Derived   bool
}

// Backend is the persistence contract used by the usage engine and the
// report resolver. Upserts return the authoritative row id for both the
// create and the update case.
type Backend interface {
	ListMachines(ctx context.Context) ([]capacity.Machine, error)
	GetUsages(ctx context.Context, date datekey.Key) ([]capacity.UsageRecord, error)
	GetJobs(ctx context.Context, date datekey.Key) ([]capacity.Job, error)

	UpsertUsage(ctx context.Context, w UsageWrite) (int64, error)
	SetDerivedFlag(ctx context.Context, w FlagWrite) (int64, error)

	CreateJob(ctx context.Context, job capacity.Job) (int64, error)
	UpdateJob(ctx context.Context, job capacity.Job) error
	DeleteJob(ctx context.Context, id int64) error

	CreateMachine(ctx context.Context, m capacity.Machine) (int64, error)
	UpdateMachine(ctx context.Context, m capacity.Machine) error
	DeleteMachine(ctx context.Context, id int64) error

	GetReport(ctx context.Context, start, end datekey.Key) (map[int64]float64, error)
}
