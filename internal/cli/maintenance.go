package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkio/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired artifacts from the file store once",
		Long: `Remove expired staged uploads, error reports, and export files.

The server sweeps on its own every STORAGE_SWEEP_INTERVAL; this runs one
sweep now. It is safe to run while the server is writing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			removed, err := store.SweepExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired artifacts (%d remain)\n", removed, store.Len())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return nil
		},
	}
}
