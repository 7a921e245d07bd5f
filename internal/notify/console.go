package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgCyan)
)

// Console prints events as coloured one-liners.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console sink writing to w (stdout when nil).
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Notify prints e.
func (c *Console) Notify(ctx context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	icon, clr := "✅", successColor
	switch e.Severity {
	case SeverityError:
		icon, clr = "❌", errorColor
	case SeverityInfo:
		icon, clr = "ℹ️", infoColor
	}
	_, err := clr.Fprintf(c.w, "   - %s %s: %s\n", icon, e.Summary, e.Detail)
	if err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}
