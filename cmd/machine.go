// cmd/machine.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/utilization"
)

var (
	machineName     string
	machineCapacity float64
	machineUnit     string
)

// machineCmd represents the machine command
var machineCmd = &cobra.Command{
	Use:     "machine",
	Aliases: []string{"printer"},
	Short:   "Manage the shop's printers",
}

var machineListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List machines and their daily capacity",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.guard.Require(cmd.Context(), access.ViewUsage); err != nil {
			return err
		}
		machines, err := s.backend.ListMachines(cmd.Context())
		if err != nil {
			return err
		}
		if len(machines) == 0 {
			fmt.Println("🤷 No machines configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCAPACITY\tUNIT")
		fmt.Fprintln(w, "--\t----\t--------\t----")
		for _, m := range machines {
			fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\n", m.ID, m.Name, m.Capacity, m.Unit)
		}
		return w.Flush()
	},
}

var machineAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		m, err := s.board().AddMachine(cmd.Context(), capacity.Machine{
			Name:     machineName,
			Capacity: machineCapacity,
			Unit:     machineUnit,
		})
		if err != nil {
			return err
		}
		fmt.Printf("   - Machine %d: %s\n", m.ID, m.Name)
		return nil
	},
}

var machineEditCmd = &cobra.Command{
	Use:   "edit <machine-id>",
	Short: "Change a machine; only the flags given are updated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("machine", args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		machines, err := s.backend.ListMachines(cmd.Context())
		if err != nil {
			return err
		}
		var m capacity.Machine
		for _, candidate := range machines {
			if candidate.ID == id {
				m = candidate
				break
			}
		}
		if m.ID == 0 {
			return fmt.Errorf("machine %d: %w", id, capacity.ErrUnknownMachine)
		}

		flags := cmd.Flags()
		if flags.Changed("name") {
			m.Name = machineName
		}
		if flags.Changed("capacity") {
			m.Capacity = machineCapacity
		}
		if flags.Changed("unit") {
			m.Unit = machineUnit
		}
		return s.board().UpdateMachine(cmd.Context(), m)
	},
}

var machineDeleteCmd = &cobra.Command{
	Use:     "delete <machine-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a machine with its usages and jobs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("machine", args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		return s.board().DeleteMachine(cmd.Context(), id)
	},
}

func init() {
	rootCmd.AddCommand(machineCmd)
	machineCmd.AddCommand(machineListCmd, machineAddCmd, machineEditCmd, machineDeleteCmd)

	for _, c := range []*cobra.Command{machineAddCmd, machineEditCmd} {
		c.Flags().StringVar(&machineName, "name", "", "Machine name")
		c.Flags().Float64Var(&machineCapacity, "capacity", 0, "Rated daily capacity")
		c.Flags().StringVar(&machineUnit, "unit", utilization.AreaUnit, "Capacity unit")
	}
	machineAddCmd.MarkFlagRequired("name")
}
