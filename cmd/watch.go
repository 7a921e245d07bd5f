// cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/usage"
)

var watchInterval time.Duration

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep today's job-derived usages pushed to the backend",
	Long: `Reloads today's usage on an interval and pushes every machine whose
usage is derived from jobs, so jobs recorded elsewhere are reflected in the
stored usage. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		interval := s.cfg.ReconcileInterval
		if cmd.Flags().Changed("interval") {
			interval = watchInterval
		}
		if interval <= 0 {
			return ErrInvalidInterval
		}

		reconciler := usage.NewReconciler(usage.ReconcilerConfig{
			Board:    s.board(),
			Interval: interval,
			LogFn:    logFn,
		})

		headerColor.Printf("--- 🔁 Reconciling derived usage every %s ---\n", interval)
		if err := reconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		goodColor.Println("✅ Stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Time between reconcile cycles")
}
