// cmd/job.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/capacity"
)

var (
	jobDate    string
	jobMachine int64
	jobName    string
	jobQty     int
	jobHeight  float64
	jobLength  float64
)

// jobCmd represents the job command
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage the print jobs of a day",
	Long: `Jobs record what was printed on a machine. Machines whose usage is
derived from jobs are re-pushed after every change.`,
}

var jobListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the jobs of a day",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDay(jobDate)
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

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a job",
	Example: `  capacity job add --machine 1 --name "Window decals" --qty 2 --height 12 --length 12
  capacity job add --machine 1 --name Banner --qty 1 --height 36 --length 96 --date 2024-03-13`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDay(jobDate)
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
		job, err := b.AddJob(cmd.Context(), capacity.Job{
			MachineID: jobMachine,
			Name:      jobName,
			Qty:       jobQty,
			Height:    jobHeight,
			Length:    jobLength,
		})
		if job.ID != 0 {
			fmt.Printf("   - Job %d: %.2f units\n", job.ID, job.Units())
		}
		return err
	},
}

var jobEditCmd = &cobra.Command{
	Use:   "edit <job-id>",
	Short: "Change a job; only the flags given are updated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		day, err := parseDay(jobDate)
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

		var job capacity.Job
		found := false
		for _, j := range b.Jobs() {
			if j.ID == id {
				job, found = j, true
				break
			}
		}
		if !found {
			return fmt.Errorf("job %d on %s: %w", id, day, capacity.ErrUnknownJob)
		}

		flags := cmd.Flags()
		if flags.Changed("machine") {
			job.MachineID = jobMachine
		}
		if flags.Changed("name") {
			job.Name = jobName
		}
		if flags.Changed("qty") {
			job.Qty = jobQty
		}
		if flags.Changed("height") {
			job.Height = jobHeight
		}
		if flags.Changed("length") {
			job.Length = jobLength
		}
		return b.UpdateJob(cmd.Context(), job)
	},
}

var jobDeleteCmd = &cobra.Command{
	Use:     "delete <job-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a job",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("job", args[0])
		if err != nil {
			return err
		}
		day, err := parseDay(jobDate)
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
		return b.DeleteJob(cmd.Context(), id)
	},
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobListCmd, jobAddCmd, jobEditCmd, jobDeleteCmd)
	jobCmd.PersistentFlags().StringVar(&jobDate, "date", "", "Day of the job (YYYY-MM-DD, default today)")

	for _, c := range []*cobra.Command{jobAddCmd, jobEditCmd} {
		c.Flags().Int64Var(&jobMachine, "machine", 0, "Machine id")
		c.Flags().StringVar(&jobName, "name", "", "Job name")
		c.Flags().IntVar(&jobQty, "qty", 1, "Quantity printed")
		c.Flags().Float64Var(&jobHeight, "height", 0, "Height in inches")
		c.Flags().Float64Var(&jobLength, "length", 0, "Length in inches")
	}
	jobAddCmd.MarkFlagRequired("machine")
	jobAddCmd.MarkFlagRequired("height")
	jobAddCmd.MarkFlagRequired("length")
}
