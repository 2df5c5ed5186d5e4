// Package cli provides the jobctl operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkio/internal/config"
	"github.com/JonMunkholm/bulkio/internal/database"
	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/history"
	"github.com/JonMunkholm/bulkio/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// app holds what the commands share. Everything is opened lazily, so a
// command only connects to what it uses; tests pre-fill the fields.
type app struct {
	out    io.Writer
	client *http.Client

	cfg    *config.Config
	pool   *pgxpool.Pool
	ledger history.Ledger
	store  *filestore.Store

	verbose bool
}

// Execute runs jobctl with the process arguments.
func Execute() error {
	// A .env file is optional; explicit environment wins over it.
	_ = godotenv.Load()

	a := &app{
		out:    os.Stdout,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	defer a.close()
	return newRootCmd(a).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "jobctl",
		Short: "Operate the bulk import/export job engine",
		Long: `jobctl manages the job engine's database and artifacts and inspects jobs.

Database commands read DATABASE_URL and the other settings the server uses.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			logger, _ := logging.New(cmd.ErrOrStderr(), level, "text", "")
			slog.SetDefault(logger)
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newSweepCmd(a))
	root.AddCommand(newStatusCmd(a))
	return root
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) openLedger(ctx context.Context) (history.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	a.ledger = history.NewPostgresLedger(pool)
	return a.ledger, nil
}

func (a *app) openStore() (*filestore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	store, err := filestore.Open(cfg.Storage.Dir, filestore.Options{})
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
