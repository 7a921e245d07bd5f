// cmd/version.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/signsinfo/capacity/internal/backend"
)

// Version will be set at build time
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the capacity CLI",
	Long: `Prints the CLI version. When an API is configured, the server's
version is fetched from /health and compared with the CLI's.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("capacity version %s\n", Version)

		cfg, err := loadConfig(cfgFile)
		if err != nil || cfg.API == "" {
			return
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		client := backend.NewClient(backend.ClientConfig{BaseURL: cfg.API, Token: cfg.Token, DebugFunc: Debug})
		info, err := client.Health(ctx)
		if err != nil {
			warnColor.Printf("server %s: unreachable (%v)\n", cfg.API, err)
			return
		}
		fmt.Printf("server %s: version %s\n", cfg.API, displayVersion(info.Version))

		switch cmp, err := compareVersions(Version, info.Version); {
		case err != nil:
			Debug("version comparison skipped: %v", err)
		case cmp < 0:
			warnColor.Println("   - ⚠️ The server is newer than this CLI. Consider upgrading.")
		case cmp > 0:
			warnColor.Println("   - ⚠️ The server is older than this CLI; some commands may fail.")
		}
	},
}

// compareVersions returns -1, 0 or 1 as local is older than, equal to or
// newer than remote. Development builds cannot be compared.
func compareVersions(local, remote string) (int, error) {
	lv, err := goversion.NewVersion(strings.TrimPrefix(local, "v"))
	if err != nil {
		return 0, fmt.Errorf("local version %q: %w", local, err)
	}
	rv, err := goversion.NewVersion(strings.TrimPrefix(remote, "v"))
	if err != nil {
		return 0, fmt.Errorf("server version %q: %w", remote, err)
	}
	return lv.Compare(rv), nil
}

func displayVersion(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
