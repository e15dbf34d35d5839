// Command parcelsync keeps a target parcel layer in step with the county's
// spatial parcels and its tabular assessing export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"parcelsync/internal/config"
	"parcelsync/internal/logging"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	envFile    string
	logLevel   string

	// cfg is loaded by PersistentPreRunE for every command but version.
	cfg *config.Config
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "parcelsync",
	Short: "Synchronise the parcel layer from the spatial source and the assessing export",
	Long: `parcelsync joins the county's parcel polygons to the tabular assessing
export, derives PIN, deep link and acreage attributes, and applies the
resulting adds, updates and deletes to the target parcel table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		c, err := config.Load(configFile, envFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		logging.Configure(c.Log)
		logging.Default().Debug().Str("config", c.File).Str("layer", c.Layer).Msg("configuration loaded")
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./parcelsync.yaml or ~/.parcelsync/parcelsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file with DB_* credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(initStoreCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "parcelsync", version)
	},
}
