package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
	"github.com/spf13/cobra"
)

var (
	limitMinutes int
	limitStart   string
	limitEnd     string
	limitDays    string
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-app time limits and schedules",
}

var limitsSetCmd = &cobra.Command{
	Use:   "set [flags] PACKAGE",
	Short: "Set the time limit rule for an app",
	Example: `  tvwarden limits set --minutes 90 com.netflix.ninja
  tvwarden limits set --start 16:00 --end 19:30 --days sat,sun com.google.android.youtube.tv
  tvwarden limits set --minutes -1 --start 21:00 --end 06:00 com.example.app`,
	Args: cobra.ExactArgs(1),
	RunE: runLimitsSet,
}

var limitsClearCmd = &cobra.Command{
	Use:   "clear PACKAGE",
	Short: "Remove the time limit rule, leaving the app unlimited",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsClear,
}

var limitsShowCmd = &cobra.Command{
	Use:   "show PACKAGE",
	Short: "Show an app's rule and today's usage against it",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsShow,
}

func init() {
	limitsSetCmd.Flags().IntVar(&limitMinutes, "minutes", -1, "Daily limit in minutes (negative for unlimited)")
	limitsSetCmd.Flags().StringVar(&limitStart, "start", "", "Start of the allowed window (HH:MM)")
	limitsSetCmd.Flags().StringVar(&limitEnd, "end", "", "End of the allowed window (HH:MM)")
	limitsSetCmd.Flags().StringVar(&limitDays, "days", "", "Comma-separated allowed days (e.g. mon,tue,sat); empty means every day")

	limitsCmd.AddCommand(limitsSetCmd, limitsClearCmd, limitsShowCmd)
	rootCmd.AddCommand(limitsCmd)
}

func runLimitsSet(cmd *cobra.Command, args []string) error {
	rule := storage.TimeLimit{
		PackageName:      args[0],
		AllowedStartTime: limitStart,
		AllowedEndTime:   limitEnd,
	}
	if limitMinutes >= 0 {
		rule.DailyLimitMinutes = storage.Minutes(limitMinutes)
	}
	days, err := parseWeekdays(limitDays)
	if err != nil {
		return err
	}
	rule.AllowedDays = days

	return withService(cmd.Context(), func(svc control.Service) error {
		if err := svc.SetLimit(cmd.Context(), rule); err != nil {
			return err
		}
		color.New(color.FgGreen, color.Bold).Printf("✅ Rule saved for %s\n", rule.PackageName)
		printRule(&rule)
		return nil
	})
}

func runLimitsClear(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		if err := svc.ClearLimit(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Rule cleared for %s, app is now unlimited\n", args[0])
		return nil
	})
}

func runLimitsShow(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		st, err := svc.App(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("App:        %s (%s)\n", st.App.DisplayName, st.App.PackageName)
		fmt.Printf("Allowed:    %t\n", st.App.Allowed)
		if st.Rule == nil {
			fmt.Println("Rule:       none (unlimited, any time)")
		} else {
			printRule(st.Rule)
		}
		fmt.Printf("Used today: %d min\n", st.UsedToday)
		if st.Remaining != nil {
			fmt.Printf("Remaining:  %d min\n", *st.Remaining)
		}
		if st.Exceeded {
			color.New(color.FgRed, color.Bold).Println("Daily limit reached")
		}
		return nil
	})
}

func printRule(rule *storage.TimeLimit) {
	fmt.Printf("Limit:      %s\n", minutesOrUnlimited(rule.DailyLimitMinutes))
	if rule.HasSchedule() {
		start, end := policy.Window(rule)
		fmt.Printf("Window:     %s - %s\n", start, end)
	}
	if len(rule.AllowedDays) > 0 {
		names := make([]string, len(rule.AllowedDays))
		for i, d := range rule.AllowedDays {
			names[i] = d.String()[:3]
		}
		fmt.Printf("Days:       %s\n", strings.Join(names, ", "))
	}
}

func minutesOrUnlimited(m *int) string {
	if m == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d min/day", *m)
}

func parseWeekdays(s string) ([]time.Weekday, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		day, err := parseWeekday(part)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}
