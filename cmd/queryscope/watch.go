package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/cache"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/report"
	"github.com/QTest-hq/queryscope/internal/scanner"
	"github.com/QTest-hq/queryscope/internal/watch"
)

func watchCmd() *cobra.Command {
	var (
		format     string
		configPath string
		allFiles   bool
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-analyze PHP files as they change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			reporter, err := report.NewRegistry().Get(format)
			if err != nil {
				return err
			}

			project, err := loadProject(root, configPath)
			if err != nil {
				return err
			}
			if allFiles {
				project.Controllers.Only = false
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			s := scanner.New(scanner.Options{
				Root:    root,
				Project: project,
				Workers: cfg.Analysis.Workers,
				Cache:   cache.New(cfg.Analysis.CacheSize),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cmd.OutOrStdout(), s, reporter, debounce)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml, github, markdown)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Project config file (default: <dir>/.queryscope.yaml)")
	cmd.Flags().BoolVar(&allFiles, "all-files", false, "Analyze every PHP file, not only controllers")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is analyzed")

	return cmd
}

// runWatch prints a full scan, then a report for every batch of changes
// until ctx is done
func runWatch(ctx context.Context, w io.Writer, s *scanner.Scanner, reporter report.Reporter, debounce time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	if err := render(w, reporter, result.Reports); err != nil {
		return err
	}

	watcher, err := watch.New(s, debounce, func(reports []*analyzer.FileReport) {
		if err := render(w, reporter, reports); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	})
	if err != nil {
		return err
	}

	return watcher.Run(ctx)
}

func render(w io.Writer, reporter report.Reporter, reports []*analyzer.FileReport) error {
	out, err := reporter.Render(report.NewDocument(reports))
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}
