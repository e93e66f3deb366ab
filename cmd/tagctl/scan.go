package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"image-tagger/internal/app"
	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/orchestrator"
	"image-tagger/internal/progress"
	"image-tagger/internal/startup"
)

const refreshInterval = 250 * time.Millisecond

type scanOptions struct {
	force       bool
	noRecursive bool
	noMetadata  bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Describe and tag every new or changed image in a directory",
		Long: `Registers the directory as a folder, scans it once and waits until every
image has been processed. Images already described are skipped unless
--force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not an accessible directory", dir)
			}

			config, err := loadConfig()
			if err != nil {
				return err
			}
			config.WatchEnabled = false
			config.ScanOnStartup = false
			if opts.noMetadata {
				config.WriteMetadata = false
			}

			out := cmd.OutOrStdout()
			live := isTerminal(out)
			if live && !verboseFlag {
				// Log lines would break the live progress display.
				logging.SetLevel(logging.LevelWarn)
			}
			return runScan(cmd.Context(), config, dir, opts, out, live)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Reprocess images that have not changed")
	cmd.Flags().BoolVar(&opts.noRecursive, "no-recursive", false, "Only scan the top level of the directory")
	cmd.Flags().BoolVar(&opts.noMetadata, "no-metadata", false, "Do not embed descriptions into the files")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runScan(ctx context.Context, config *startup.Config, dir string, opts scanOptions, out io.Writer, live bool) error {
	a, err := app.Build(ctx, config)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.Orch.Start(ctx); err != nil {
		return err
	}

	folder, err := a.DB.AddFolder(ctx, dir, !opts.noRecursive)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", dir, err)
	}

	res, err := a.Orch.ScanFolder(ctx, *folder, orchestrator.TriggerCLI, opts.force)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d images: %d queued, %d unchanged, %d unreadable\n",
		res.Discovered, res.Queued, res.Unchanged, res.Unreadable)

	if err := waitForRun(ctx, a.Orch, out, live); err != nil {
		return err
	}
	return printSummary(ctx, a.DB, a.Orch.Reporter().Snapshot(), out)
}

// waitForRun renders progress until the orchestrator has drained the run.
func waitForRun(ctx context.Context, orch *orchestrator.Orchestrator, out io.Writer, live bool) error {
	var writer *uilive.Writer
	if live {
		writer = uilive.New()
		writer.Out = out
		writer.Start()
		defer writer.Stop()
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	last := -1
	for {
		snap := orch.Reporter().Snapshot()
		switch {
		case writer != nil:
			fmt.Fprintln(writer, formatProgress(snap))
		case snap.CompletedTasks != last:
			fmt.Fprintln(out, formatProgress(snap))
			last = snap.CompletedTasks
		}

		if orch.Idle() && !snap.Active {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.New("interrupted, unfinished images stay pending for the next run")
		case <-ticker.C:
		}
	}
}

func formatProgress(s progress.Snapshot) string {
	line := fmt.Sprintf("[%3d%%] %d/%d", s.Progress, s.CompletedTasks, s.TotalTasks)
	if s.CurrentTask != "" {
		line += "  " + filepath.Base(s.CurrentTask)
	}
	if s.Error != "" {
		line += "  (" + s.Error + ")"
	}
	return line
}

func printSummary(ctx context.Context, db *database.Database, snap progress.Snapshot, out io.Writer) error {
	counts, err := db.StatusCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	fmt.Fprintf(out, "Done: %d/%d processed. Records: %d completed, %d failed, %d pending\n",
		snap.CompletedTasks, snap.TotalTasks,
		counts[database.StatusCompleted], counts[database.StatusFailed], counts[database.StatusPending])
	return nil
}
