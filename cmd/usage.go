// cmd/usage.go
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var usageDate string

// usageCmd represents the usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record machine usage for a day",
}

var usageSetCmd = &cobra.Command{
	Use:   "set <machine-id> <units>",
	Short: "Set a machine's usage by hand",
	Long: `Stores a manual usage figure for the machine on the selected day.
Machines whose usage is derived from jobs must be switched off first with
'capacity usage derive <machine-id> off'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("machine", args[0])
		if err != nil {
			return err
		}
		units, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid units %q", args[1])
		}
		day, err := parseDay(usageDate)
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
		return b.SetManual(cmd.Context(), id, units)
	},
}

var usageDeriveCmd = &cobra.Command{
	Use:       "derive <machine-id> on|off",
	Short:     "Derive a machine's usage from its jobs, or stop deriving it",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("machine", args[0])
		if err != nil {
			return err
		}
		var derived bool
		switch strings.ToLower(args[1]) {
		case "on", "true", "yes":
			derived = true
		case "off", "false", "no":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}
		day, err := parseDay(usageDate)
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
		if err := b.SetDerived(cmd.Context(), id, derived); err != nil {
			return err
		}
		if row, ok := b.Row(id); ok {
			fmt.Printf("   - %s now uses %s usage: %.2f\n", row.Machine.Name, sourceLabel(row), row.Usage.UnitsUsed)
		}
		return nil
	},
}

var usageReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Push every job-derived usage of the day to the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDay(usageDate)
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
		n, err := b.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		goodColor.Printf("✅ Pushed %d derived usage(s) for %s\n", n, day)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageSetCmd, usageDeriveCmd, usageReconcileCmd)
	usageCmd.PersistentFlags().StringVar(&usageDate, "date", "", "Day to record (YYYY-MM-DD, default today)")
}
