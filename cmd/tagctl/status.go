package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"image-tagger/internal/database"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts per status and the folder registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), config.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			return showStatus(cmd.Context(), db, cmd.OutOrStdout())
		},
	}
}

func showStatus(ctx context.Context, db *database.Database, out io.Writer) error {
	// Add timeout to context for database operations
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	counts, err := db.StatusCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	folders, err := db.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tRECORDS")
	total := 0
	for _, s := range []database.Status{
		database.StatusPending, database.StatusProcessing, database.StatusCompleted, database.StatusFailed,
	} {
		fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	if err := tw.Flush(); err != nil {
		return err
	}

	if last, err := db.GetLastScan(ctx); err == nil && !last.IsZero() {
		fmt.Fprintf(out, "\nLast full scan: %s\n", last.Format(time.RFC3339))
	}

	if len(folders) == 0 {
		fmt.Fprintln(out, "\nNo folders registered.")
		return nil
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATH\tRECURSIVE\tACTIVE")
	for _, f := range folders {
		fmt.Fprintf(tw, "%d\t%s\t%v\t%v\n", f.ID, f.Path, f.Recursive, f.Active)
	}
	return tw.Flush()
}
