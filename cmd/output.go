// cmd/output.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/signsinfo/capacity/internal/usage"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

// ratioColor colours a utilization ratio: green below 80%, yellow up to
// 100%, red over capacity.
func ratioColor(ratio float64) *color.Color {
	switch {
	case ratio > 1:
		return badColor
	case ratio >= 0.8:
		return warnColor
	default:
		return goodColor
	}
}

// formatRatio renders a ratio as a percentage.
func formatRatio(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// printRatio writes a coloured percentage, or "n/a" when ok is false.
func printRatio(w io.Writer, ratio float64, ok bool) {
	if !ok {
		fmt.Fprint(w, "n/a")
		return
	}
	ratioColor(ratio).Fprint(w, formatRatio(ratio))
}

// sourceLabel describes where a row's value comes from.
func sourceLabel(r usage.Row) string {
	if r.Usage.DerivedFromJobs {
		return "jobs"
	}
	return "manual"
}

// barWidth sizes utilization bars to the terminal: 10 cells when piped or
// narrow, up to 30 on wide terminals.
func barWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 10
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width < 120 {
		return 10
	}
	return min(30, (width-90)/2)
}

// bar renders a ratio as a bar of barWidth cells.
func bar(ratio float64) string {
	return barOf(ratio, barWidth())
}

func barOf(ratio float64, width int) string {
	cells := int(ratio*float64(width) + 0.5)
	cells = max(0, min(cells, width))
	return "[" + strings.Repeat("#", cells) + strings.Repeat(".", width-cells) + "]"
}
