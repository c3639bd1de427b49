package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goodtune/tvwarden/internal/control"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect recorded usage",
}

var usageTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show minutes used today per app",
	Args:  cobra.NoArgs,
	RunE:  runUsageToday,
}

func init() {
	usageCmd.AddCommand(usageTodayCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageToday(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		report, err := svc.TodayUsage(cmd.Context())
		if err != nil {
			return err
		}
		if len(report.Entries) == 0 {
			fmt.Printf("No usage recorded on %s\n", report.Date)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "PACKAGE\tMINUTES\t(%s)\n", report.Date)
		total := 0
		for _, e := range report.Entries {
			fmt.Fprintf(w, "%s\t%d\t\n", e.PackageName, e.Minutes)
			total += e.Minutes
		}
		fmt.Fprintf(w, "TOTAL\t%d\t\n", total)
		return w.Flush()
	})
}
