package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/internal/config"
	"github.com/jackzampolin/rollcall/internal/ingest"
	"github.com/jackzampolin/rollcall/internal/output"
	"github.com/jackzampolin/rollcall/internal/svcctx"
)

// watchDebounce collapses bursts of file events into one run.
const watchDebounce = 2 * time.Second

var (
	watchRoster string
	watchInbox  string
	watchOpts   batchOptions
)

var watchCmd = &cobra.Command{
	Use:   "watch --roster FILE --inbox DIR",
	Short: "Re-validate an inbox directory whenever documents arrive",
	Long: `Watch validates every document in the inbox, then runs again whenever a
.pdf or .docx file is added or changed, and whenever the config file
changes. Each run is an independent batch with its own report.

Examples:
  rollcall watch --roster roster.xlsx --inbox ~/scans`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchRoster == "" || watchInbox == "" {
			return errors.New("--roster and --inbox are required")
		}
		info, err := os.Stat(watchInbox)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("inbox %s is not a directory", watchInbox)
		}
		watchOpts.HasThreshold = cmd.Flags().Changed("threshold")

		ctx := cmd.Context()
		return runWatch(ctx, svcctx.ServicesFrom(ctx))
	},
}

func init() {
	addBatchFlags(watchCmd, &watchOpts)
	watchCmd.Flags().StringVar(&watchRoster, "roster", "", "reference roster (.csv or .xlsx)")
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "directory to watch for documents")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, svc *svcctx.Services) error {
	logger := svc.Logger.With("inbox", watchInbox)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(watchInbox); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchInbox, err)
	}

	// Config changes swap extractors in place and schedule a new run.
	trigger := make(chan struct{}, 1)
	svc.Config.OnChange(func(cfg *config.Config) {
		svc.Registry.Reload(cfg.ToRegistryConfig())
		logger.Info("config reloaded", "threshold", cfg.Matching.Threshold)
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	if svc.Config.ConfigFile() != "" {
		svc.Config.WatchConfig()
	}

	run := func() {
		res, err := runValidation(ctx, svc, watchOpts, []string{watchInbox}, watchRoster)
		switch {
		case errors.Is(err, ingest.ErrNoDocuments):
			logger.Info("inbox is empty, waiting for documents")
		case err != nil && ctx.Err() == nil:
			logger.Error("run failed", "error", err)
		case err == nil:
			if perr := output.Print(res); perr != nil {
				logger.Error("failed to print summary", "error", perr)
			}
		}
	}

	logger.Info("watching for documents", "debounce", watchDebounce)
	run()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ingest.Kind(ev.Name) == "" || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("document event", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		case <-trigger:
			timer.Reset(watchDebounce)
		case <-timer.C:
			run()
		}
	}
}
