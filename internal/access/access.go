// Package access maps a caller's permission level to the capabilities it
// grants. Every component that mutates or reads capacity data consults the
// same Table instead of comparing level strings itself.
package access

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/signsinfo/capacity/internal/capacity"
)

// Capability is a single permitted action.
type Capability string

const (
	ViewUsage   Capability = "view-usage"
	EditUsage   Capability = "edit-usage"
	EditJobs    Capability = "edit-jobs"
	EditMachine Capability = "edit-machine"
	ViewReport  Capability = "view-report"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{ViewUsage, EditUsage, EditJobs, EditMachine, ViewReport}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Table maps permission levels to their capabilities.
type Table map[string]map[Capability]bool

// DefaultTable grants everything to the admin tiers and read access to
// employees. Guests and unknown levels get nothing.
func DefaultTable() Table {
	return Table{
		"superadmin": allCapabilities(),
		"admin":      allCapabilities(),
		"employee":   {ViewUsage: true, ViewReport: true},
		"guest":      {},
	}
}

func allCapabilities() map[Capability]bool {
	caps := make(map[Capability]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		caps[c] = true
	}
	return caps
}

// TableFromConfig builds a table from level -> capability names.
func TableFromConfig(levels map[string][]string) (Table, error) {
	t := Table{}
	for level, names := range levels {
		caps := map[Capability]bool{}
		for _, name := range names {
			c, err := ParseCapability(strings.TrimSpace(name))
			if err != nil {
				return nil, fmt.Errorf("level %q: %w", level, err)
			}
			caps[c] = true
		}
		t[level] = caps
	}
	return t, nil
}

// Allows reports whether level grants c.
func (t Table) Allows(level string, c Capability) bool {
	caps, ok := t[level]
	if !ok {
		return false
	}
	return caps[c]
}

// Capabilities returns the sorted capabilities of level.
func (t Table) Capabilities(level string) []Capability {
	var out []Capability
	for c, ok := range t[level] {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Provider yields the permission level of the current caller.
type Provider interface {
	CurrentLevel(ctx context.Context) (string, error)
}

// Static is a Provider with a fixed level, used by the CLI and in tests.
type Static string

// CurrentLevel returns the fixed level.
func (s Static) CurrentLevel(ctx context.Context) (string, error) {
	return string(s), nil
}

// Guard checks capabilities for the caller identified by a Provider.
type Guard struct {
	Table    Table
	Provider Provider
}

// Require returns capacity.ErrForbidden unless the caller holds c. A nil
// guard allows everything.
func (g *Guard) Require(ctx context.Context, c Capability) error {
	if g == nil || g.Provider == nil {
		return nil
	}
	level, err := g.Provider.CurrentLevel(ctx)
	if err != nil {
		return fmt.Errorf("resolve permission level: %w", err)
	}
	if !g.Table.Allows(level, c) {
		return fmt.Errorf("level %q lacks %s: %w", level, c, capacity.ErrForbidden)
	}
	return nil
}
