package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/spf13/cobra"
)

var (
	checkDay  string
	checkTime string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check rule decisions interactively",
	Long:  `Check what tvwarden would decide for a launch request or for the app currently on screen.`,
}

var checkLaunchCmd = &cobra.Command{
	Use:   "launch [flags] PACKAGE",
	Short: "Check a launch request without starting the app",
	Example: `  tvwarden check launch com.netflix.ninja
  tvwarden check launch --day saturday --time 20:30 com.google.android.youtube.tv`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckLaunch,
}

var checkMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Detect the foreground app and show the monitor decision",
	Long: `Detect the foreground app and show what the poll loop would do with it.
Usage is not recorded and nothing is enforced.`,
	Args: cobra.NoArgs,
	RunE: runCheckMonitor,
}

func init() {
	checkLaunchCmd.Flags().StringVar(&checkDay, "day", "", "Day of week (monday, tuesday, etc.) - defaults to current day")
	checkLaunchCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")

	checkCmd.AddCommand(checkLaunchCmd)
	checkCmd.AddCommand(checkMonitorCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckLaunch(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	at := time.Now()
	if checkDay != "" || checkTime != "" {
		var err error
		at, err = parseCheckTime(at, checkDay, checkTime)
		if err != nil {
			return fmt.Errorf("invalid --day or --time: %w", err)
		}
	}

	return withService(cmd.Context(), func(svc control.Service) error {
		result, err := svc.CheckLaunch(cmd.Context(), pkg, at)
		if err != nil {
			return fmt.Errorf("failed to evaluate launch: %w", err)
		}

		printLaunchResult(pkg, at, result)
		return nil
	})
}

func runCheckMonitor(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		preview, err := svc.PreviewMonitor(cmd.Context())
		if err != nil {
			return err
		}
		if !preview.Detected {
			color.New(color.FgYellow, color.Bold).Println("No foreground app detected")
			return nil
		}

		printMonitorDecision(preview.Detection, preview.Action)
		return nil
	})
}

func banner(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Println(title)
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func closingRule() {
	fmt.Println()
	_, _ = color.New(color.FgCyan, color.Bold).Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printLaunchResult prints the launch check result with colors
func printLaunchResult(pkg string, at time.Time, result policy.LaunchResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	banner("LAUNCH CHECK")
	fmt.Printf("Package:    %s\n", pkg)
	fmt.Printf("Check Time: %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	fmt.Println()

	_, _ = cyan.Print("Decision:   ")
	switch r := result.(type) {
	case policy.Success:
		_, _ = green.Println("ALLOW")
		fmt.Printf("            → %s would be started\n", r.Component)
	case policy.AppNotInstalled:
		_, _ = red.Println("NOT INSTALLED")
		fmt.Println("            → App is not registered or has no launchable entry point")
	case policy.NotAllowed:
		_, _ = red.Println("NOT ALLOWED")
		fmt.Printf("            → %s\n", r.Reason)
	case policy.OutsideSchedule:
		_, _ = yellow.Println("OUTSIDE SCHEDULE")
		fmt.Printf("            → Allowed between %s and %s\n", r.Start, r.End)
	case policy.TimeLimitReached:
		_, _ = yellow.Println("TIME LIMIT REACHED")
		fmt.Printf("            → %s has used today's allowance\n", r.DisplayName)
	default:
		fmt.Println(result.String())
	}

	closingRule()
}

// printMonitorDecision prints what the poll loop would do
func printMonitorDecision(det detect.Detection, action policy.MonitorAction) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	banner("MONITOR CHECK")
	fmt.Printf("Foreground: %s\n", det.Package)
	fmt.Printf("Detected:   %s\n", det.Method)
	fmt.Println()

	_, _ = cyan.Print("Decision:   ")
	switch act := action.(type) {
	case policy.Ignore:
		_, _ = green.Println("IGNORE")
		fmt.Println("            → System or supervisor app, nothing to do")
	case policy.RecordUsage:
		_, _ = green.Println("RECORD USAGE")
		fmt.Printf("            → +%d min for %s, %d min today\n", act.IncrementMinutes, act.DisplayName, act.NewTotalMinutes)
	case policy.BlockNotAllowed:
		_, _ = red.Println("BLOCK")
		fmt.Println("            → App is not allowed, shield would be brought forward")
	case policy.EnforceTimeLimit:
		_, _ = yellow.Println("TIME LIMIT")
		fmt.Printf("            → %s used %d of %d min, app would be suspended\n", act.DisplayName, act.MinutesUsed, act.DailyLimit)
	default:
		fmt.Println(action.Kind())
	}

	closingRule()
}

// parseCheckTime applies day and time flags to now
func parseCheckTime(now time.Time, dayStr, timeStr string) (time.Time, error) {
	hour, minute := now.Hour(), now.Minute()
	if timeStr != "" {
		t, err := time.Parse("15:04", timeStr)
		if err != nil {
			return time.Time{}, fmt.Errorf("time must be in HH:MM format: %s", timeStr)
		}
		hour, minute = t.Hour(), t.Minute()
	}

	targetDay := now.Weekday()
	if dayStr != "" {
		day, err := parseWeekday(dayStr)
		if err != nil {
			return time.Time{}, err
		}
		targetDay = day
	}

	daysUntilTarget := int(targetDay - now.Weekday())
	if daysUntilTarget < 0 {
		daysUntilTarget += 7
	}

	target := now.AddDate(0, 0, daysUntilTarget)
	return time.Date(target.Year(), target.Month(), target.Day(), hour, minute, 0, 0, now.Location()), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid day: %s", s)
	}
}
