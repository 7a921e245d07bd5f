// cmd/day.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/usage"
)

var dayDate string

// dayCmd represents the day command
var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Show machine usage and jobs for a day",
	Long: `Loads every machine with its usage for the selected day (today by
default), the jobs run that day and the shop-wide utilization.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDay(dayDate)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		b, err := s.loadBoard(cmd.Context(), day)
		if err != nil {
			return err
		}
		printBoard(os.Stdout, b)
		return nil
	},
}

// printBoard renders the loaded day of b.
func printBoard(out io.Writer, b *usage.Board) {
	day, _ := b.Day()
	rows := b.Rows()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	headerColor.Fprintf(w, "--- 🖨️ Machine Usage (%s) ---\n", day)

	if len(rows) == 0 {
		fmt.Fprintln(w, "  No machines configured. Add one with 'capacity machine add'.")
		w.Flush()
		return
	}

	fmt.Fprintln(w, "  ID\tMACHINE\tCAPACITY\tUSED\tUTILIZATION\t\tSOURCE\tRECORD")
	for _, r := range rows {
		ratio, ok := r.Utilization()
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t", r.Machine.ID, r.Machine.Name,
			formatUnits(r.Machine.Capacity, r.Machine.Unit), formatUnits(r.Usage.UnitsUsed, r.Machine.Unit))
		printRatio(w, ratio, ok)
		fmt.Fprintf(w, "\t%s\t%s\t%s\n", bar(ratio), sourceLabel(r), r.Usage.Identity)
	}

	jobs := b.Jobs()
	headerColor.Fprintf(w, "\n📋 JOBS (%d)\n", len(jobs))
	if len(jobs) == 0 {
		fmt.Fprintln(w, "  (None)")
	} else {
		names := make(map[int64]string, len(rows))
		for _, r := range rows {
			names[r.Machine.ID] = r.Machine.Name
		}
		fmt.Fprintln(w, "  ID\tMACHINE\tJOB\tQTY\tSIZE (IN)\tAREA")
		for _, j := range jobs {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%g x %g\t%.2f\n",
				j.ID, names[j.MachineID], j.Name, j.Qty, j.Height, j.Length, j.Units())
		}
	}

	shop := b.ShopWide()
	fmt.Fprintf(w, "\n  %s:\t", labelColor.Sprint("Shop-wide"))
	ratioColor(shop).Fprint(w, formatRatio(shop))
	fmt.Fprintf(w, "\t(%.2f units)\n", b.TotalUnits())
	w.Flush()
}

func formatUnits(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

func init() {
	rootCmd.AddCommand(dayCmd)
	dayCmd.Flags().StringVar(&dayDate, "date", "", "Day to show (YYYY-MM-DD, default today)")
}
