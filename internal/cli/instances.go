package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/machina-io/machina/storage/sqlite"
)

// Error codes for instances output.
const (
	ErrCodeDatabase = "E010" // database missing or unreadable
	ErrCodeNotFound = "E011" // instance id not found
)

// NewInstancesCommand creates the instances command group.
func NewInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Inspect and manage persisted machine instances",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "machina.db", "path to the instance database")

	cmd.AddCommand(newInstancesListCommand(rootOpts, &dbPath))
	cmd.AddCommand(newInstancesShowCommand(rootOpts, &dbPath))
	cmd.AddCommand(newInstancesDeleteCommand(rootOpts, &dbPath))
	cmd.AddCommand(newInstancesPurgeCommand(rootOpts, &dbPath))

	return cmd
}

// openDB opens the instance database, failing fast when the file is absent
// so list/show don't silently create an empty database.
func openDB(dbPath string) (*sqlite.DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database %s", dbPath), err)
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", dbPath), err)
	}
	return db, nil
}

func newInstancesListCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List persisted instances",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}

			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.ListInstances(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list instances", err)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no instances")
				return nil
			}
			for _, row := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					row.InstanceID, row.MachineName, row.StateKey, row.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newInstancesShowCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "show <instance-id>",
		Short:         "Show one instance, including its state payload",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}

			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			row, err := db.GetInstance(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "get instance", err)
			}
			if row == nil {
				if ferr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("instance %s not found", args[0]), nil); ferr != nil {
					return ferr
				}
				return NewExitError(ExitFailure, "instance not found")
			}

			if rootOpts.Format == "json" {
				return formatter.Success(row)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "instance:  %s\n", row.InstanceID)
			fmt.Fprintf(cmd.OutOrStdout(), "machine:   %s (version %s)\n", row.MachineName, row.MachineVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "state key: %s\n", row.StateKey)
			fmt.Fprintf(cmd.OutOrStdout(), "updated:   %s\n", row.UpdatedAt.Format(time.RFC3339))
			if row.ExpiresAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "expires:   %s\n", row.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state:     %s\n", row.StateJSON)
			return nil
		},
	}
}

func newInstancesDeleteCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <instance-id>",
		Short:         "Delete one instance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}

			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteInstance(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "delete instance", err)
			}
			return formatter.Success(fmt.Sprintf("deleted %s", args[0]))
		},
	}
}

func newInstancesPurgeCommand(rootOpts *RootOptions, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:           "purge",
		Short:         "Remove every expired instance",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}

			db, err := openDB(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.PurgeExpired(cmd.Context(), time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "purge expired", err)
			}
			return formatter.Success(fmt.Sprintf("purged %d expired instances", n))
		},
	}
}
