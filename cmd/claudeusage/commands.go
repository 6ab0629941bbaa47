package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/claudeusage/internal/config"
	"github.com/janekbaraniewski/claudeusage/internal/datasource"
	"github.com/janekbaraniewski/claudeusage/internal/refresh"
	"github.com/janekbaraniewski/claudeusage/internal/telemetry"
	"github.com/janekbaraniewski/claudeusage/internal/usage"
	"github.com/janekbaraniewski/claudeusage/internal/watcher"
)

func newRootCmd() *cobra.Command {
	var dataPath string

	root := &cobra.Command{
		Use:   "claudeusage",
		Short: "Aggregate Claude Code usage logs",
		Long: `claudeusage reads Claude Code session logs (or a live telemetry
store) and prints aggregated usage: per-project totals, daily series,
model distribution and the current session's burn rate.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dataPath != "" {
				cfg.DataPath = dataPath
			}
			return printSnapshot(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&dataPath, "data-path", "", "override the usage data root")
	root.AddCommand(newWatchCmd(&dataPath))
	root.AddCommand(newTelemetryCmd())
	return root
}

func printSnapshot(ctx context.Context, cfg config.Config) error {
	sel := datasource.Selector{
		Files: datasource.FileSource{
			Cache: usage.NewCache(usage.DataRoot(cfg.DataPath), usage.NewPricing()),
		},
	}

	// The telemetry provider only joins when its store exists; a fresh
	// install in file mode should not create an empty database.
	if dbPath, err := telemetryDBPath(cfg); err == nil {
		if _, statErr := os.Stat(dbPath); statErr == nil {
			store, err := telemetry.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			sel.Telemetry = datasource.TelemetrySource{Reader: telemetry.NewReader(store)}
		}
	}

	snap, err := sel.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeJSON(snap)
}

func newWatchCmd(dataPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh continuously and print deltas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if *dataPath != "" {
				cfg.DataPath = *dataPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root := usage.DataRoot(cfg.DataPath)
			cache := usage.NewCache(root, usage.NewPricing())
			loop := refresh.NewLoop(cache, time.Duration(cfg.RefreshIntervalSeconds)*time.Second)

			if w, err := watcher.New(root, loop.Nudge); err == nil {
				go func() { _ = w.Run(ctx) }()
			}

			go func() {
				for delta := range loop.Deltas() {
					if !delta.HasChanges {
						continue
					}
					if err := writeJSON(delta); err != nil {
						return
					}
				}
			}()

			if err := loop.Run(ctx); err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

func newTelemetryCmd() *cobra.Command {
	telemetryCmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Telemetry collector commands",
	}

	var port int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the OTLP ingest server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port == 0 {
				port = collectorPort(cfg)
			}

			dbPath, err := telemetryDBPath(cfg)
			if err != nil {
				return err
			}
			store, err := telemetry.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collector := telemetry.NewCollector(store, fmt.Sprintf("127.0.0.1:%d", port))
			return collector.Run(ctx)
		},
	}
	serve.Flags().IntVar(&port, "port", 0, "listen port (default from config)")

	telemetryCmd.AddCommand(serve)
	return telemetryCmd
}

func collectorPort(cfg config.Config) int {
	if env := os.Getenv("CLAUDEUSAGE_COLLECTOR_PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil && p > 0 && p < 65536 {
			return p
		}
	}
	if cfg.CollectorPort > 0 {
		return cfg.CollectorPort
	}
	return telemetry.DefaultCollectorPort
}

func telemetryDBPath(cfg config.Config) (string, error) {
	if cfg.TelemetryDBPath != "" {
		return cfg.TelemetryDBPath, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "telemetry.db"), nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
