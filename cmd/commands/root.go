// Package commands holds the loom CLI.
package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/loom/internal/config"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/storage"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "loom",
		Usage: "Weave agents, tasks and flows into workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewValidateCommand(),
			NewHistoryCommand(),
			NewGatewayCommand(),
		},
	}
}

// loadConfig reads the config file or falls back to defaults.
func loadConfig(cmd *cli.Command) *config.Config {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", path, "error", err)
		return config.Default()
	}
	return cfg
}

// newHistoryStore builds the configured history backend.
func newHistoryStore(cfg *config.Config) (flows.HistoryStore, func() error, error) {
	switch cfg.History.Backend {
	case "sqlite":
		if err := os.MkdirAll(cfg.History.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		store, err := storage.NewSQLStore(filepath.Join(cfg.History.Dir, "loom.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return storage.NewFileStore(cfg.History.Dir), func() error { return nil }, nil
	}
}
