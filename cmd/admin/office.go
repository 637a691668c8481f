package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"AttendGate/storage/database"
)

var officeCmd = &cobra.Command{
	Use:   "office",
	Short: "Manage office settings",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return openOffice(cmd.Context())
	},
}

var officeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show stored settings and the assembled office configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := office.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tVALUE\tUPDATED BY\tUPDATED")
		for _, s := range settings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, string(s.Value), s.UpdatedBy, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		current, err := office.Current(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "office configuration is incomplete: %v\n", err)
			return nil
		}
		out, _ := json.MarshalIndent(current, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var officeSetCmd = &cobra.Command{
	Use:     "set NAME JSON",
	Short:   "Update one office setting",
	Example: `  attendgate-admin office set allowed_radius_meters 150
  attendgate-admin office set office_location '{"lat":31.2304,"lng":121.4737}'
  attendgate-admin office set working_hours '{"start":"09:00","end":"18:00"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("value must be valid JSON: %s", args[1])
		}
		setting, err := office.Set(cmd.Context(), "cli", args[0], json.RawMessage(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", setting.Name, string(setting.Value))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openOffice(cmd.Context()); err != nil {
			return err
		}
		if err := database.Migrate(handles.DB); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migration complete.")
		return nil
	},
}

func init() {
	officeCmd.AddCommand(officeGetCmd, officeSetCmd)
	rootCmd.AddCommand(officeCmd, migrateCmd)
}
