package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch PACKAGE",
	Short: "Request an app launch through the launch gate",
	Long: `Check the app against the allowlist, its schedule and today's usage, and
start it on the TV when every rule passes.`,
	Args: cobra.ExactArgs(1),
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		result, err := svc.RequestLaunch(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("launch failed: %w", err)
		}

		if _, ok := result.(policy.Success); ok {
			color.New(color.FgGreen, color.Bold).Printf("✅ %s\n", result)
			return nil
		}
		color.New(color.FgRed, color.Bold).Printf("⛔ %s\n", result)
		return fmt.Errorf("launch refused: %s", result.Kind())
	})
}
