package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
)

// Path is the single endpoint serving every capacity resource.
const Path = "/capacity"

// Resource types used in the ?type= query and in request bodies.
const (
	TypePrinter = "printer"
	TypeUsages  = "usages"
	TypeUsage   = "usage"
	TypeUseJobs = "useJobs"
	TypeJob     = "job"
	TypeReport  = "report"
)

// Envelope is decoded first to route POST and PATCH bodies by type.
type Envelope struct {
	Type string `json:"type"`
}

// MachineDTO is a printer on the wire.
type MachineDTO struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Capacity float64 `json:"capacity"`
	Unit     string  `json:"unit"`
	Type     string  `json:"type,omitempty"`
}

// UsageDTO is a usage row on the wire. UseJobs is 1 when derived from jobs.
type UsageDTO struct {
	ID        int64   `json:"id"`
	PrinterID int64   `json:"printerId"`
	Date      string  `json:"date"`
	UnitsUsed float64 `json:"unitsUsed"`
	UseJobs   int     `json:"useJobs"`
}

// JobDTO is a job on the wire.
type JobDTO struct {
	ID        int64   `json:"id,omitempty"`
	PrinterID int64   `json:"printerId"`
	Date      string  `json:"date,omitempty"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	Height    float64 `json:"height"`
	Length    float64 `json:"length"`
	Type      string  `json:"type,omitempty"`
}

// UsagePatch is the PATCH body setting units used.
type UsagePatch struct {
	Type      string  `json:"type"`
	UsageID   int64   `json:"usageId"`
	PrinterID int64   `json:"printerId"`
	Date      string  `json:"date"`
	UnitsUsed float64 `json:"unitsUsed"`
}

// UseJobsPatch is the PATCH body toggling derive-from-jobs.
type UseJobsPatch struct {
	Type      string `json:"type"`
	UsageID   int64  `json:"usageId"`
	PrinterID int64  `json:"printerId"`
	Date      string `json:"date"`
	UseJobs   bool   `json:"useJobs"`
}

// APIError represents an error response from the API
type APIError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	StatusCode  int    `json:"-"`
}

func (e *APIError) Err() string {
	if e.Description != "" {
		return e.Error + ": " + e.Description
	}
	return e.Error
}

// MachineToDTO converts a machine for the wire.
func MachineToDTO(m capacity.Machine) MachineDTO {
	return MachineDTO{ID: m.ID, Name: m.Name, Capacity: m.Capacity, Unit: m.Unit}
}

// Machine converts the DTO to the domain type.
func (d MachineDTO) Machine() capacity.Machine {
	return capacity.Machine{ID: d.ID, Name: d.Name, Capacity: d.Capacity, Unit: d.Unit}
}

// UsageToDTO converts a usage record for the wire.
func UsageToDTO(u capacity.UsageRecord) UsageDTO {
	dto := UsageDTO{
		ID:        u.Identity.WireID(),
		PrinterID: u.MachineID,
		Date:      u.Date.String(),
		UnitsUsed: u.UnitsUsed,
	}
	if u.DerivedFromJobs {
		dto.UseJobs = 1
	}
	return dto
}

// Usage converts the DTO to the domain type.
func (d UsageDTO) Usage() capacity.UsageRecord {
	return capacity.UsageRecord{
		Identity:        capacity.Saved(d.ID),
		MachineID:       d.PrinterID,
		Date:            datekey.Key(d.Date),
		UnitsUsed:       d.UnitsUsed,
		DerivedFromJobs: d.UseJobs == 1,
	}
}

// JobToDTO converts a job for the wire.
func JobToDTO(j capacity.Job) JobDTO {
	return JobDTO{
		ID:        j.ID,
		PrinterID: j.MachineID,
		Date:      j.Date.String(),
		Name:      j.Name,
		Qty:       j.Qty,
		Height:    j.Height,
		Length:    j.Length,
	}
}

// Job converts the DTO to the domain type.
func (d JobDTO) Job() capacity.Job {
	return capacity.Job{
		ID:        d.ID,
		MachineID: d.PrinterID,
		Date:      datekey.Key(d.Date),
		Name:      d.Name,
		Qty:       d.Qty,
		Height:    d.Height,
		Length:    d.Length,
	}
}

// EncodeID renders an id the way the API returns it: a JSON string.
func EncodeID(id int64) string {
	return strconv.Quote(strconv.FormatInt(id, 10))
}

// DecodeID parses an id response, accepting both "12" and 12.
func DecodeID(body []byte) (int64, error) {
	s := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id response %q: %w", s, err)
	}
	return id, nil
}

// DecodeReport converts report keys to machine ids.
func DecodeReport(raw map[string]float64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid machine id %q in report: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}

// EncodeReport converts a report to its wire form.
func EncodeReport(ratios map[int64]float64) map[string]float64 {
	out := make(map[string]float64, len(ratios))
	for id, v := range ratios {
		out[strconv.FormatInt(id, 10)] = v
	}
	return out
}
