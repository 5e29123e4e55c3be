package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's status",
	Long: `Fetch the daemon's status: stored scan count, topology availability,
configured schedules, and any active jobs.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := newAPIClient(cfg)
	report, err := client.status()
	if err != nil {
		return err
	}

	if statusJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	health, err := client.health()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon: %s (%v)\n\n", health.Status, health.Services)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Field", "Value")

	lastScan := "never"
	if report.LastScanTime != "" {
		lastScan = report.LastScanTime
	}

	rows := [][]string{
		{"Target network", report.TargetNetwork},
		{"Stored scans", strconv.Itoa(report.LastScanCount)},
		{"Last scan", lastScan},
		{"Topology available", strconv.FormatBool(report.TopologyAvailable)},
		{"Scan schedule", report.ScanSchedule},
		{"Topology schedule", report.TopologySchedule},
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()

	if len(report.ActiveJobs) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nActive jobs:")
		jobs := tablewriter.NewWriter(cmd.OutOrStdout())
		jobs.Header("ID", "Kind", "Status", "Target", "Submitted")
		for _, job := range report.ActiveJobs {
			_ = jobs.Append([]string{
				job.ID.String()[:8],
				string(job.Kind),
				string(job.Status),
				job.Target,
				job.SubmittedAt.Format("2006-01-02 15:04:05"),
			})
		}
		_ = jobs.Render()
	}

	return nil
}
