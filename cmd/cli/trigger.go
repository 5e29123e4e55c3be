package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var triggerNetwork string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger a port scan on the running daemon",
	Long: `Ask the running daemon to start a port scan. The command returns as
soon as the daemon accepts the job; use 'scanward status' to follow
progress. While a scan is already running the daemon answers busy.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTrigger(cmd, "/scan")
	},
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Trigger a topology mapping on the running daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTrigger(cmd, "/topology")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, topologyCmd} {
		cmd.Flags().StringVarP(&triggerNetwork, "network", "n", "",
			"network to scan (defaults to the daemon's configured network)")
		rootCmd.AddCommand(cmd)
	}
}

func runTrigger(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := newAPIClient(cfg).trigger(path, triggerNetwork)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\njob:     %s\nnetwork: %s\n",
		result.Message, result.JobID, result.Network)
	return nil
}
