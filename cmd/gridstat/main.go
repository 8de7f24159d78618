// Command gridstat analyzes grid trading statements from the command line and
// manages the account registry used by the bot.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/camuig/rf-history/internal/config"
	"github.com/camuig/rf-history/internal/logger"
	"github.com/camuig/rf-history/internal/metrics"
	"github.com/camuig/rf-history/internal/storage"
)

// app holds what the subcommands share. The database is opened on demand so
// offline analysis works without one.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	repo       *storage.Repository
	closeDB    func()
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.Execute()
	if a.closeDB != nil {
		a.closeDB()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gridstat",
		Short: "Grid trading statement analyzer",
		Long: `gridstat reads RoboForex / RoboMarkets HTML statements, rebuilds the
grids of a grid trading strategy and reports drawdowns and returns.

It shares config.yaml and the SQLite database with the bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newAccountCmd(a))
	root.AddCommand(newScanCmd(a))
	return root
}

// loadConfig falls back to defaults when the config file does not exist.
func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cfg.Logging.Level)
	a.metrics = metrics.New()
	return nil
}

func (a *app) repository() (*storage.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	db, err := storage.NewDatabase(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.repo = storage.NewRepository(db)
	a.closeDB = func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return a.repo, nil
}
