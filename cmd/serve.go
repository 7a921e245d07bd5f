// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/api"
	"github.com/signsinfo/capacity/internal/notify"
	"github.com/signsinfo/capacity/internal/store"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local database over the capacity HTTP API",
	Long: `Starts the capacity API on top of the local SQLite database. Other
capacity CLIs (and browsers) point --api at this server.

Operators are configured under server.users in the config file, keyed by
bearer token. Writes are announced on /events and, when redis.url is set,
published to Redis.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile)
		if err != nil {
			return err
		}
		table, err := cfg.table()
		if err != nil {
			return err
		}

		apiCfg := api.DefaultConfig()
		apiCfg.Host = cfg.Server.Host
		apiCfg.Port = cfg.Server.Port
		apiCfg.Users = cfg.Server.Users
		apiCfg.Table = table
		apiCfg.WriteRPS = cfg.Server.WriteRPS
		apiCfg.WriteBurst = cfg.Server.WriteBurst
		apiCfg.AllowedOrigins = cfg.Server.AllowedOrigins
		apiCfg.Version = Version
		apiCfg.Debug = apiCfg.Debug || debugMode
		if cmd.Flags().Changed("host") {
			apiCfg.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			apiCfg.Port = servePort
		}
		if err := apiCfg.Validate(); err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(cfg.DB), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		st, err := store.OpenStore(cfg.DB)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps := api.Deps{
			Backend: st,
			Hub:     notify.NewHub(16),
		}
		if cfg.Redis.URL != "" {
			s := &session{cfg: cfg}
			pub, err := s.redisPublisher(ctx)
			if err != nil {
				warnColor.Fprintf(os.Stderr, "   - ⚠️ Redis notifications disabled: %v\n", err)
			} else {
				defer pub.Close()
				deps.Notifier = pub
				fmt.Printf("   - Publishing events to Redis (%s)\n", pub.PubSubChannel())
			}
		}

		server := api.NewServer(apiCfg, deps)
		headerColor.Printf("--- 🖨️ Capacity API (%s) ---\n", Version)
		fmt.Printf("   - Database: %s\n", cfg.DB)
		fmt.Printf("   - Operators: %d\n", len(apiCfg.Users))

		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		goodColor.Println("✅ Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Interface to bind (default all)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
}
