// cmd/report.go
package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/report"
)

var (
	reportStart string
	reportEnd   string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [period]",
	Short: "Show average machine utilization over a period",
	Long: fmt.Sprintf(`Resolves a reporting period to a date range and shows each machine's
utilization over it, plus the shop-wide average.

Periods: %s
A custom period needs --start and --end. Giving --start and --end alone
implies custom.`, periodNames()),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period := report.ThisWeek
		if len(args) == 1 {
			p, err := report.ParsePeriod(args[0])
			if err != nil {
				return err
			}
			period = p
		} else if reportStart != "" || reportEnd != "" {
			period = report.Custom
		}

		var custom *report.Range
		if period == report.Custom {
			start, err := parseDay(reportStart)
			if err != nil {
				return err
			}
			end, err := parseDay(reportEnd)
			if err != nil {
				return err
			}
			custom = &report.Range{Start: start, End: end}
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.resolver().Run(cmd.Context(), period, custom)
		if err != nil {
			return err
		}
		printReport(result)
		return nil
	},
}

func printReport(r report.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	headerColor.Fprintf(w, "--- 📈 Utilization Report: %s (%s) ---\n", r.Period.Label(), r.Range)

	if len(r.Machines) == 0 {
		fmt.Fprintln(w, "  No machines configured.")
		w.Flush()
		return
	}

	fmt.Fprintln(w, "  MACHINE\tUTILIZATION\t")
	for _, m := range r.Machines {
		ratio, ok := r.Ratio(m.ID)
		fmt.Fprintf(w, "  %s\t", m.Name)
		printRatio(w, ratio, ok)
		fmt.Fprintf(w, "\t%s\n", bar(ratio))
	}

	fmt.Fprintf(w, "\n  %s:\t", labelColor.Sprint("Shop average"))
	ratioColor(r.Summary).Fprint(w, formatRatio(r.Summary))
	fmt.Fprintln(w, "\t")
	w.Flush()
}

func periodNames() string {
	names := make([]string, len(report.Periods))
	for i, p := range report.Periods {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportStart, "start", "", "First day of a custom period (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "Last day of a custom period (YYYY-MM-DD)")
}
