package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/startup"
)

// Default timeout for database operations
const defaultTimeout = 30 * time.Second

var (
	dbPathFlag  string
	verboseFlag bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tagctl",
		Short: "Image tagger command line utility",
		Long: `tagctl runs the image tagging pipeline once over a directory, shows
record counts from the database and previews tag extraction.

Configuration is read the same way as the server: CONFIG_FILE, then
environment variables such as DATABASE_DIR and OLLAMA_SERVER.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verboseFlag {
				logging.SetLevel(logging.LevelDebug)
			}
		},
	}

	root.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Database file (default: $DATABASE_DIR/image-tagger.db)")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newScanCmd(), newStatusCmd(), newTagsCmd())
	return root
}

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the --db override.
func loadConfig() (*startup.Config, error) {
	config, err := startup.ReadConfig()
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		config.DatabasePath = dbPathFlag
		if config.SearchEnabled {
			config.SearchIndexPath = filepath.Join(filepath.Dir(dbPathFlag), "descriptions.bleve")
		}
	}
	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return config, nil
}

func openDatabase(ctx context.Context, path string) (*database.Database, error) {
	db, err := database.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w (check DATABASE_DIR or --db)", path, err)
	}
	return db, nil
}
