package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/catalog"
	"github.com/goodtune/tvwarden/internal/control"
	"github.com/spf13/cobra"
)

var appsDisplayName string

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Manage the app allowlist",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered apps with today's usage",
	Args:  cobra.NoArgs,
	RunE:  runAppsList,
}

var appsAllowCmd = &cobra.Command{
	Use:   "allow PACKAGE",
	Short: "Allow an app",
	Long: fmt.Sprintf(`Allow an app. Apps without a time limit rule get a default daily limit of
%d minutes; existing rules are kept.`, apps.DefaultDailyLimitMinutes),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetAllowed(cmd, args[0], true)
	},
}

var appsDenyCmd = &cobra.Command{
	Use:   "deny PACKAGE",
	Short: "Remove an app from the allowlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetAllowed(cmd, args[0], false)
	},
}

var appsKnownCmd = &cobra.Command{
	Use:   "known [NAME]",
	Short: "List known streaming apps and their package variants",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAppsKnown,
}

func init() {
	appsAllowCmd.Flags().StringVar(&appsDisplayName, "name", "", "Display name (defaults to the known app catalog)")

	appsCmd.AddCommand(appsListCmd, appsAllowCmd, appsDenyCmd, appsKnownCmd)
	rootCmd.AddCommand(appsCmd)
}

func runAppsList(cmd *cobra.Command, args []string) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		statuses, err := svc.Apps(cmd.Context())
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("No apps registered")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PACKAGE\tNAME\tALLOWED\tLIMIT\tUSED\tREMAINING")
		for _, st := range statuses {
			allowed := red("no")
			if st.App.Allowed {
				allowed = green("yes")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				st.App.PackageName, st.App.DisplayName, allowed,
				minutesOrDash(st.DailyLimit), st.UsedToday, minutesOrDash(st.Remaining))
		}
		return w.Flush()
	})
}

func runSetAllowed(cmd *cobra.Command, pkg string, allowed bool) error {
	return withService(cmd.Context(), func(svc control.Service) error {
		name := ""
		if allowed {
			name = appsDisplayName
		}
		app, err := svc.SetAllowed(cmd.Context(), pkg, name, allowed)
		if err != nil {
			return err
		}

		if allowed {
			color.New(color.FgGreen, color.Bold).Printf("✅ %s (%s) is allowed\n", app.DisplayName, app.PackageName)
		} else {
			color.New(color.FgRed, color.Bold).Printf("⛔ %s (%s) is no longer allowed\n", app.DisplayName, app.PackageName)
		}
		return nil
	})
}

func runAppsKnown(cmd *cobra.Command, args []string) error {
	cat := catalog.Default()

	names := cat.UniqueNames()
	if len(args) == 1 {
		names = []string{args[0]}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPACKAGE\tCATEGORY\tKIDS")
	found := false
	for _, name := range names {
		for _, app := range cat.FindVariants(name) {
			found = true
			kids := ""
			if app.IsKidsVariant {
				kids = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.DisplayName, app.PackageName, app.Category, kids)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no known app named %q", strings.Join(args, " "))
	}
	return nil
}

func minutesOrDash(m *int) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *m)
}
