package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
	"github.com/signsinfo/capacity/internal/notify"
)

const maxBodyBytes = 1 << 20

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// handleHealth returns a simple health check response.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     s.config.Version,
		Subscribers: s.hub.Count(),
	})
}

// handleLogin returns the authenticated operator.
// GET /login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	writeJSON(w, http.StatusOK, access.LoginResponse{
		Level:     u.Level,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	})
}

// handleGet serves the read side of the capacity endpoint.
// GET /capacity?type=printer|usages|job|report
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	switch kind := mux.Vars(r)["type"]; kind {
	case backend.TypePrinter:
		if err := s.guard.Require(ctx, access.ViewUsage); err != nil {
			writeError(w, err)
			return
		}
		machines, err := s.backend.ListMachines(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]backend.MachineDTO, len(machines))
		for i, m := range machines {
			out[i] = backend.MachineToDTO(m)
		}
		writeJSON(w, http.StatusOK, out)

	case backend.TypeUsages:
		if err := s.guard.Require(ctx, access.ViewUsage); err != nil {
			writeError(w, err)
			return
		}
		date, err := dateParam(q.Get("date"))
		if err != nil {
			writeError(w, err)
			return
		}
		usages, err := s.backend.GetUsages(ctx, date)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]backend.UsageDTO, len(usages))
		for i, u := range usages {
			out[i] = backend.UsageToDTO(u)
		}
		writeJSON(w, http.StatusOK, out)

	case backend.TypeJob:
		if err := s.guard.Require(ctx, access.ViewUsage); err != nil {
			writeError(w, err)
			return
		}
		date, err := dateParam(q.Get("date"))
		if err != nil {
			writeError(w, err)
			return
		}
		jobs, err := s.backend.GetJobs(ctx, date)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out := make([]backend.JobDTO, len(jobs))
		for i, j := range jobs {
			out[i] = backend.JobToDTO(j)
		}
		writeJSON(w, http.StatusOK, out)

	case backend.TypeReport:
		if err := s.guard.Require(ctx, access.ViewReport); err != nil {
			writeError(w, err)
			return
		}
		start, err := dateParam(q.Get("startDate"))
		if err != nil {
			writeError(w, err)
			return
		}
		end, err := dateParam(q.Get("endDate"))
		if err != nil {
			writeError(w, err)
			return
		}
		if start > end {
			writeError(w, fmt.Errorf("startDate %s is after endDate %s: %w", start, end, ErrBadRequest))
			return
		}
		ratios, err := s.backend.GetReport(ctx, start, end)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, backend.EncodeReport(ratios))

	default:
		writeError(w, fmt.Errorf("%q: %w", kind, ErrUnknownType))
	}
}

// handleWrite routes POST and PATCH bodies by their type field.
// POST  /capacity {type: printer|job}
// PATCH /capacity {type: printer|job|usage|useJobs}
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("read body: %v: %w", err, ErrBadRequest))
		return
	}
	var env backend.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, fmt.Errorf("decode body: %v: %w", err, ErrBadRequest))
		return
	}

	var (
		id     int64
		event  writeEvent
		handle func(context.Context, []byte) (int64, writeEvent, error)
	)
	switch {
	case r.Method == http.MethodPost && env.Type == backend.TypePrinter:
		handle = s.createMachine
	case r.Method == http.MethodPost && env.Type == backend.TypeJob:
		handle = s.createJob
	case r.Method == http.MethodPatch && env.Type == backend.TypePrinter:
		handle = s.updateMachine
	case r.Method == http.MethodPatch && env.Type == backend.TypeJob:
		handle = s.updateJob
	case r.Method == http.MethodPatch && env.Type == backend.TypeUsage:
		handle = s.upsertUsage
	case r.Method == http.MethodPatch && env.Type == backend.TypeUseJobs:
		handle = s.setUseJobs
	default:
		writeError(w, fmt.Errorf("%s %q: %w", r.Method, env.Type, ErrUnknownType))
		return
	}

	id, event, err = handle(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.write(env.Type, r.Method)
	s.announce(r.Context(), event)
	writeID(w, id)
}

// handleDelete removes a job or printer.
// DELETE /capacity?type=job|printer&id=N
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, fmt.Errorf("invalid id %q: %w", vars["id"], ErrBadRequest))
		return
	}

	var event writeEvent
	switch kind := vars["type"]; kind {
	case backend.TypeJob:
		if err := s.guard.Require(ctx, access.EditJobs); err != nil {
			writeError(w, err)
			return
		}
		if err := s.backend.DeleteJob(ctx, id); err != nil {
			s.fail(w, r, err)
			return
		}
		event = writeEvent{detail: "Job deleted."}
	case backend.TypePrinter:
		if err := s.guard.Require(ctx, access.EditMachine); err != nil {
			writeError(w, err)
			return
		}
		if err := s.backend.DeleteMachine(ctx, id); err != nil {
			s.fail(w, r, err)
			return
		}
		event = writeEvent{detail: "Machine deleted.", machineID: id}
	default:
		writeError(w, fmt.Errorf("%q: %w", kind, ErrUnknownType))
		return
	}

	s.metrics.write(vars["type"], r.Method)
	s.announce(ctx, event)
	w.WriteHeader(http.StatusNoContent)
}

type writeEvent struct {
	detail    string
	date      datekey.Key
	machineID int64
}

func (s *Server) createMachine(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditMachine); err != nil {
		return 0, writeEvent{}, err
	}
	var dto backend.MachineDTO
	if err := decode(body, &dto); err != nil {
		return 0, writeEvent{}, err
	}
	id, err := s.backend.CreateMachine(ctx, dto.Machine())
	return id, writeEvent{detail: "Machine added.", machineID: id}, err
}

func (s *Server) updateMachine(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditMachine); err != nil {
		return 0, writeEvent{}, err
	}
	var dto backend.MachineDTO
	if err := decode(body, &dto); err != nil {
		return 0, writeEvent{}, err
	}
	err := s.backend.UpdateMachine(ctx, dto.Machine())
	return dto.ID, writeEvent{detail: "Machine updated.", machineID: dto.ID}, err
}

func (s *Server) createJob(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditJobs); err != nil {
		return 0, writeEvent{}, err
	}
	var dto backend.JobDTO
	if err := decode(body, &dto); err != nil {
		return 0, writeEvent{}, err
	}
	job := dto.Job()
	if _, err := dateParam(job.Date.String()); err != nil {
		return 0, writeEvent{}, err
	}
	id, err := s.backend.CreateJob(ctx, job)
	return id, writeEvent{detail: "Job added.", date: job.Date, machineID: job.MachineID}, err
}

func (s *Server) updateJob(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditJobs); err != nil {
		return 0, writeEvent{}, err
	}
	var dto backend.JobDTO
	if err := decode(body, &dto); err != nil {
		return 0, writeEvent{}, err
	}
	job := dto.Job()
	err := s.backend.UpdateJob(ctx, job)
	return job.ID, writeEvent{detail: "Job updated.", date: job.Date, machineID: job.MachineID}, err
}

func (s *Server) upsertUsage(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditUsage); err != nil {
		return 0, writeEvent{}, err
	}
	var p backend.UsagePatch
	if err := decode(body, &p); err != nil {
		return 0, writeEvent{}, err
	}
	date, err := dateParam(p.Date)
	if err != nil {
		return 0, writeEvent{}, err
	}
	id, err := s.backend.UpsertUsage(ctx, backend.UsageWrite{
		ID:        p.UsageID,
		MachineID: p.PrinterID,
		Date:      date,
		UnitsUsed: p.UnitsUsed,
	})
	return id, writeEvent{detail: "Usage updated.", date: date, machineID: p.PrinterID}, err
}

func (s *Server) setUseJobs(ctx context.Context, body []byte) (int64, writeEvent, error) {
	if err := s.guard.Require(ctx, access.EditUsage); err != nil {
		return 0, writeEvent{}, err
	}
	var p backend.UseJobsPatch
	if err := decode(body, &p); err != nil {
		return 0, writeEvent{}, err
	}
	date, err := dateParam(p.Date)
	if err != nil {
		return 0, writeEvent{}, err
	}
	id, err := s.backend.SetDerivedFlag(ctx, backend.FlagWrite{
		ID:        p.UsageID,
		MachineID: p.PrinterID,
		Date:      date,
		Derived:   p.UseJobs,
	})
	return id, writeEvent{detail: "Usage updated.", date: date, machineID: p.PrinterID}, err
}

// announce sends a success event for a completed write.
func (s *Server) announce(ctx context.Context, we writeEvent) {
	e := notify.NewEvent(notify.SeveritySuccess, we.detail)
	e.Date = we.date.String()
	e.MachineID = we.machineID
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.logger.Printf("notify failed: %v", err)
	}
}

// fail logs unexpected backend errors and writes the error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, err)
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, ErrBadRequest)
	}
	return nil
}

func dateParam(s string) (datekey.Key, error) {
	k := datekey.Key(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid date %q: %w", s, ErrBadRequest)
	}
	return k, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrUnknownToken):
		return http.StatusUnauthorized
	case errors.Is(err, capacity.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, capacity.ErrNotFound),
		errors.Is(err, capacity.ErrUnknownMachine),
		errors.Is(err, capacity.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrUnknownType),
		errors.Is(err, capacity.ErrNegativeUsage),
		errors.Is(err, capacity.ErrInvalidJob),
		errors.Is(err, capacity.ErrInvalidMachine),
		errors.Is(err, capacity.ErrDerivedUsage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errorCodes = map[int]string{
	http.StatusBadRequest:          "invalid_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusInternalServerError: "server_error",
}

// writeError writes err as an APIError body with the matching status.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, backend.APIError{
		Error:       errorCodes[status],
		Description: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeID answers a write with the row id as a JSON string.
func writeID(w http.ResponseWriter, id int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, backend.EncodeID(id))
}
