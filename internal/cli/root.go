package cli

import (
	"fmt"
	"io/fs"

	"github.com/lazypower/memoria/internal/config"
	"github.com/lazypower/memoria/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPathFlag string
)

// UI is the embedded companion web app served by `serve`. Set by main.
var UI fs.FS

var rootCmd = &cobra.Command{
	Use:   "memoria",
	Short: "Reminder engine for memory-assistance companions",
	Long: "Memoria keeps track of reminders for people who need help remembering, " +
		"decides when each one is due, and delivers it to the companion app.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remindersCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.Database.Path = dbPathFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openDB(cfg *config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
