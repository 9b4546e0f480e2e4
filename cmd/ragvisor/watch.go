package main

import (
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/ragvisor/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd() *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Re-ingest documents as they change",
		Long: `Watch a folder and embed *.pdf and *.txt files when they are created or
modified. Changes are batched until the folder has been quiet for
ingest.watch_debounce.

Examples:
  ragvisor watch ./docs
  ragvisor watch --initial ./docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			w, err := watcher.New(watcher.Config{
				Dir:      args[0],
				Debounce: cfg.Ingest.WatchDebounce.Duration(),
			}, a.pipeline, a.logger)
			if err != nil {
				return err
			}

			if initial {
				req, err := buildIngestRequest("", args[0], nil)
				if err != nil {
					return err
				}
				report, err := a.pipeline.Ingest(ctx, req)
				switch {
				case err != nil:
					a.logger.Warn("initial ingestion failed", zap.Error(err))
				default:
					if err := printReport(cmd.OutOrStdout(), report); err != nil {
						a.logger.Warn("initial ingestion stored nothing", zap.Error(err))
					}
				}
			}

			return w.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "ingest the folder once before watching")
	return cmd
}
