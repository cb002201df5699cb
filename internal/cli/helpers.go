package cli

import (
	"context"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/studyforge/studyforge/internal/daemon"
)

func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig()
}

// newDaemon wires the services described by cfg and installs its logger
// as the process default.
func newDaemon(ctx context.Context, cfg daemon.Config) (*daemon.Daemon, error) {
	log := daemon.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(log)
	return daemon.NewWithConfig(ctx, cfg, log)
}

// openDaemon wires the services for a one-shot command.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// One-shot commands never schedule and keep stderr quiet.
	cfg.Scheduler.Enabled = false
	if cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	return newDaemon(ctx, cfg)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}
