package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scanward/scanward/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scanning daemon",
	Long: `Run the scanward daemon in the foreground: scheduled scans, topology
mappings, and the HTTP trigger API. The process stops on SIGINT or
SIGTERM after draining running jobs.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d := daemon.New(cfg)
	if err := d.Start(); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}
