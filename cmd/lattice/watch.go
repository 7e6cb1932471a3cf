package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lattice/internal/watch"
)

var flagMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then keep the session current as files change",
	Long:  "Runs an initial build and watches the source tree. Filesystem events are debounced into changesets; each changeset reparses only the affected files and re-evaluates their dependents.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	addSessionFlags(watchCmd)
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError("watch", err)
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}
	logger := newLogger(cfg)

	session, backend, err := newSession(cfg, logger)
	if err != nil {
		return outputError("watch", err)
	}
	defer backend.Close()

	start := time.Now()
	state, err := session.BuildInitial(context.Background())
	if err != nil {
		return outputError("watch", err)
	}
	report := buildReport(session, state, "full", time.Since(start), false)
	if err := outputResult(CLIResult{Command: "watch", Results: report}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onChange := func(change watch.Changeset) {
		updStart := time.Now()
		next, err := session.Update(ctx, change)
		if err != nil {
			logger.Error("update failed", "error", err)
			return
		}
		logger.Info("updated",
			"added", len(change.Added),
			"modified", len(change.Modified),
			"removed", len(change.Removed),
			"files", len(next.Snapshots),
		)
		upd := buildReport(session, next, "incremental", time.Since(updStart), false)
		if err := outputResult(CLIResult{Command: "watch", Results: upd}); err != nil {
			logger.Error("writing update report", "error", err)
		}
	}

	watcher, err := watch.New(cfg.Debounce, cfg.ExcludeDirs, logger, onChange)
	if err != nil {
		return outputError("watch", err)
	}
	defer watcher.Close()

	if err := watcher.Watch([]string{session.WorkDir()}); err != nil {
		return outputError("watch", err)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
	}

	fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", session.WorkDir())
	<-ctx.Done()
	return nil
}
