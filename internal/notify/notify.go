// Package notify delivers the success and error toasts produced by the
// capacity engine to whoever is listening: the terminal, Redis subscribers
// and websocket clients of the API server.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Severity of a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Event is a single user-facing notification.
type Event struct {
	Version   string   `json:"version"`
	ID        string   `json:"id"`
	Severity  Severity `json:"severity"`
	Summary   string   `json:"summary"`
	Detail    string   `json:"detail"`
	Date      string   `json:"date,omitempty"`
	MachineID int64    `json:"machineId,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(severity Severity, detail string) Event {
	summary := "Success"
	switch severity {
	case SeverityError:
		summary = "Error"
	case SeverityInfo:
		summary = "Info"
	}
	return Event{
		Version:   "1.0",
		ID:        uuid.New().String(),
		Severity:  severity,
		Summary:   summary,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Discard drops every event.
type Discard struct{}

// Notify does nothing.
func (Discard) Notify(ctx context.Context, e Event) error { return nil }

// Multi fans an event out to several sinks. Every sink is tried; failures are
// joined.
type Multi []Notifier

// Notify delivers e to each sink.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
