package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/filesystem"
	"image-tagger/internal/handlers"
	"image-tagger/internal/logging"
	"image-tagger/internal/memory"
	"image-tagger/internal/metadata"
	"image-tagger/internal/metrics"
	"image-tagger/internal/orchestrator"
	"image-tagger/internal/progress"
	"image-tagger/internal/search"
	"image-tagger/internal/startup"
	"image-tagger/internal/vision"
	"image-tagger/internal/watcher"
)

// statsInterval is how often the metrics collector samples the database.
const statsInterval = time.Minute

// App holds the wired pipeline.
type App struct {
	Config   *startup.Config
	DB       *database.Database
	Orch     *orchestrator.Orchestrator
	Search   *search.Index
	Watcher  *watcher.Watcher
	Memory   *memory.Monitor
	Handlers *handlers.Handlers

	collector *metrics.Collector
	ctx       context.Context
	cancel    context.CancelFunc
}

// Build opens the database and search index and wires every component. No
// background work runs until Start.
func Build(ctx context.Context, config *startup.Config) (*App, error) {
	filesystem.SetDefaultVolumeResolver(VolumeResolver(config))

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	client := NewVisionClient(config)
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	startup.LogVisionInit(config.OllamaServer, config.OllamaModel, client.Ping(pingCtx, config.OllamaServer))
	cancelPing()

	writer := NewMetadataWriter(config)
	if writer != nil {
		startup.LogMetadataInit(true, writer.Strategies())
	} else {
		startup.LogMetadataInit(false, nil)
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())

	deps := orchestrator.Deps{
		DB:        db,
		Describer: client,
		Reporter:  progress.New(),
		Memory:    monitor,
	}
	// A nil *metadata.Writer must not become a non-nil interface.
	if writer != nil {
		deps.Writer = writer
	}
	orch := orchestrator.New(OrchestratorConfig(config), deps)
	startup.LogPipelineInit(orch.Config().Workers, orch.Config().MaxAttempts, config.ScanInterval)

	a := &App{
		Config: config,
		DB:     db,
		Orch:   orch,
		Memory: monitor,
	}

	if config.SearchEnabled {
		idx, err := openSearch(ctx, config.SearchIndexPath, db)
		if err != nil {
			logging.Warn("Description search disabled: %v", err)
		} else {
			a.Search = idx
			orch.SetSink(idx)
		}
	}

	if config.WatchEnabled {
		w, err := watcher.New(watcher.Config{Debounce: config.WatchDebounce}, orch)
		if err != nil {
			logging.Warn("Folder watching disabled: %v", err)
		} else {
			a.Watcher = w
		}
	}

	var fw handlers.FolderWatcher
	if a.Watcher != nil {
		fw = a.Watcher
	}
	a.Handlers = handlers.New(db, orch, a.Search, fw)
	a.collector = metrics.NewCollector(db, config.DatabasePath, statsInterval)

	return a, nil
}

// VolumeResolver labels filesystem retry metrics by the configured database
// directory and image folders.
func VolumeResolver(config *startup.Config) *filesystem.VolumeResolver {
	vr := filesystem.NewVolumeResolver(map[string]string{"database": config.DatabaseDir})
	for _, f := range config.Folders {
		vr.Add("folders", f.Path)
	}
	return vr
}

// NewVisionClient builds the Ollama client from configuration.
func NewVisionClient(config *startup.Config) *vision.Client {
	return vision.NewClient(vision.Config{
		Prompt:      config.OllamaPrompt,
		Temperature: config.OllamaTemperature,
		HealthCheck: config.OllamaHealthCheck,
		Restarter:   vision.NewRestarter(config.OllamaRestartCmd, config.OllamaRestartCooldown),
	})
}

// NewMetadataWriter returns a writer over the configured strategies, in the
// configured order, or nil when metadata writing is disabled.
func NewMetadataWriter(config *startup.Config) *metadata.Writer {
	if !config.WriteMetadata {
		return nil
	}

	available := metadata.DefaultStrategies(config.MetadataToolTimeout)
	var chosen []metadata.Strategy
	for _, name := range config.MetadataStrategies {
		i := slices.IndexFunc(available, func(s metadata.Strategy) bool { return s.Name() == name })
		if i < 0 {
			logging.Warn("Unknown metadata strategy %q ignored", name)
			continue
		}
		chosen = append(chosen, available[i])
	}
	if len(chosen) == 0 {
		logging.Warn("No usable metadata strategies configured, metadata writing disabled")
		return nil
	}
	return metadata.NewWriter(chosen...)
}

// OrchestratorConfig maps configuration onto the orchestrator.
func OrchestratorConfig(config *startup.Config) orchestrator.Config {
	return orchestrator.Config{
		Workers:        config.Workers,
		QueueSize:      config.QueueSize,
		MaxAttempts:    config.MaxAttempts,
		BackoffBase:    config.RetryBackoff,
		BackoffMax:     config.RetryBackoffMax,
		Model:          config.OllamaModel,
		Server:         config.OllamaServer,
		RequestTimeout: config.OllamaTimeout,
		MaxDimension:   config.MaxDimension,
		Policy:         config.FingerprintPolicy,
		BatchSize:      config.BatchSize,
		BatchDelay:     config.BatchDelay,
	}
}

func openSearch(ctx context.Context, path string, db *database.Database) (*search.Index, error) {
	idx, created, err := search.Open(path)
	if err != nil {
		startup.LogSearchInit(path, 0, err)
		return nil, err
	}
	if created {
		n, err := idx.Rebuild(ctx, db)
		if err != nil {
			logging.Warn("Failed to rebuild search index: %v", err)
		} else if n > 0 {
			logging.Info("Indexed %d existing descriptions", n)
		}
	}
	docs, err := idx.Count()
	startup.LogSearchInit(path, docs, err)
	return idx, nil
}

// SeedFolders ensures every configured folder is in the registry and
// returns the active folders.
func (a *App) SeedFolders(ctx context.Context) ([]database.Folder, error) {
	for _, f := range a.Config.Folders {
		if _, err := os.Stat(f.Path); err != nil {
			logging.Warn("Registering unavailable folder %s: %v", f.Path, err)
		}
		if _, err := a.DB.AddFolder(ctx, f.Path, f.Recursive); err != nil {
			return nil, fmt.Errorf("register folder %s: %w", f.Path, err)
		}
	}
	return a.DB.ActiveFolders(ctx)
}

// Start recovers interrupted work, starts the workers and watchers and kicks
// off the startup and periodic scans.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.Memory.Start()
	a.collector.Start()

	if err := a.Orch.Start(ctx); err != nil {
		return err
	}

	folders, err := a.SeedFolders(ctx)
	if err != nil {
		return err
	}

	if a.Watcher != nil {
		for _, f := range folders {
			if err := a.Watcher.AddFolder(f); err != nil {
				logging.Warn("Not watching %s: %v", f.Path, err)
			}
		}
		startup.LogWatcherInit(len(folders), a.Watcher.WatchedDirectories())
	}

	if a.Config.ScanOnStartup {
		go func() {
			if _, err := a.Orch.ScanAll(a.ctx, orchestrator.TriggerStartup, false); err != nil &&
				!errors.Is(err, orchestrator.ErrScanInProgress) && !errors.Is(err, context.Canceled) {
				logging.Error("Startup scan failed: %v", err)
			}
		}()
	}
	go a.Orch.RunPeriodic(a.ctx, a.Config.ScanInterval)

	a.Handlers.SetReady(true)
	return nil
}

// Shutdown stops event sources first, then the workers, then storage.
func (a *App) Shutdown() {
	a.Handlers.SetReady(false)
	if a.cancel != nil {
		a.cancel()
	}

	if a.Watcher != nil {
		startup.LogShutdownStep("Stopping folder watcher")
		a.Watcher.Stop()
		startup.LogShutdownStepComplete("Folder watcher stopped")
	}

	startup.LogShutdownStep("Stopping processing workers")
	a.Orch.Stop()
	startup.LogShutdownStepComplete("Processing workers stopped")

	a.Memory.Stop()
	a.collector.Stop()

	if a.Search != nil {
		startup.LogShutdownStep("Closing search index")
		if err := a.Search.Close(); err != nil {
			logging.Warn("Failed to close search index: %v", err)
		} else {
			startup.LogShutdownStepComplete("Search index closed")
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := a.DB.Close(); err != nil {
		logging.Warn("Failed to close database: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}
}
