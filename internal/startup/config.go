package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"image-tagger/internal/fingerprint"
	"image-tagger/internal/logging"
	"image-tagger/internal/media"
	"image-tagger/internal/metadata"
	"image-tagger/internal/vision"
	"image-tagger/internal/workers"
)

// FolderConfig is a folder to register at startup.
type FolderConfig struct {
	Path      string
	Recursive bool
}

// Config holds all application configuration
type Config struct {
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	ConfigFile      string

	// Folders registered at startup
	Folders []FolderConfig

	// Scanning and watching
	ScanOnStartup bool
	ScanInterval  time.Duration
	WatchEnabled  bool
	WatchDebounce time.Duration
	BatchSize     int
	BatchDelay    time.Duration

	// Processing
	Workers           int
	QueueSize         int
	MaxAttempts       int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	FingerprintPolicy fingerprint.Policy
	MaxDimension      int

	// Vision backend
	OllamaServer          string
	OllamaModel           string
	OllamaTimeout         time.Duration
	OllamaPrompt          string
	OllamaTemperature     float64
	OllamaHealthCheck     bool
	OllamaRestartCmd      string
	OllamaRestartCooldown time.Duration

	// Metadata embedding
	WriteMetadata       bool
	MetadataStrategies  []string
	MetadataToolTimeout time.Duration

	// Search
	SearchEnabled bool

	// Derived paths
	DatabasePath    string
	SearchIndexPath string
}

// LoadConfig loads and validates configuration from the optional config file
// and environment variables, logging the result.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := ReadConfig()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Database directory (absolute): %s", config.DatabaseDir)

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	for _, f := range config.Folders {
		if err := checkFolder(f.Path); err != nil {
			logging.Warn("  Folder %s: %v", f.Path, err)
		} else {
			logging.Info("  [OK] Folder %s (recursive: %v)", f.Path, f.Recursive)
		}
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:         ENABLED (required)")
	logging.Info("    Folder watching:  %s", enabledString(config.WatchEnabled))
	logging.Info("    Metadata writing: %s", enabledString(config.WriteMetadata))
	logging.Info("    Search index:     %s", enabledString(config.SearchEnabled))
	logging.Info("    Metrics:          %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// ReadConfig builds the configuration without logging or touching the
// filesystem beyond reading CONFIG_FILE. Environment variables override the
// file, which overrides built-in defaults.
func ReadConfig() (*Config, error) {
	configFile := os.Getenv("CONFIG_FILE")
	var file fileConfig
	if configFile != "" {
		var err error
		file, err = loadFileConfig(configFile)
		if err != nil {
			return nil, err
		}
	}

	policy, err := fingerprint.ParsePolicy(getEnv("FINGERPRINT_POLICY", file.FingerprintPolicy))
	if err != nil {
		return nil, fmt.Errorf("FINGERPRINT_POLICY: %w", err)
	}

	databaseDir, err := filepath.Abs(getEnv("DATABASE_DIR", or(file.DatabaseDir, "/data")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	folders, err := resolveFolders(os.Getenv("WATCH_FOLDERS"), file.folders())
	if err != nil {
		return nil, err
	}

	config := &Config{
		DatabaseDir:     databaseDir,
		Port:            getEnv("PORT", or(file.Port, "8080")),
		MetricsPort:     getEnv("METRICS_PORT", or(file.MetricsPort, "9090")),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", orBool(file.MetricsEnabled, true)),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", orBool(file.LogHealthChecks, true)),
		ConfigFile:      configFile,
		Folders:         folders,

		ScanOnStartup: getEnvBool("SCAN_ON_STARTUP", orBool(file.ScanOnStartup, true)),
		ScanInterval:  getEnvDuration("SCAN_INTERVAL", or(file.ScanInterval, "1h")),
		WatchEnabled:  getEnvBool("WATCH_ENABLED", orBool(file.WatchEnabled, true)),
		WatchDebounce: getEnvDuration("WATCH_DEBOUNCE", or(file.WatchDebounce, "2s")),
		BatchSize:     getEnvInt("BATCH_SIZE", file.BatchSize),
		BatchDelay:    getEnvDuration("BATCH_DELAY", or(file.BatchDelay, "0s")),

		Workers:           getEnvInt("PROCESSING_WORKERS", orInt(file.Workers, workers.ForIO(8))),
		QueueSize:         getEnvInt("QUEUE_SIZE", orInt(file.QueueSize, 256)),
		MaxAttempts:       getEnvInt("MAX_ATTEMPTS", orInt(file.MaxAttempts, 3)),
		RetryBackoff:      getEnvDuration("RETRY_BACKOFF", or(file.RetryBackoff, "2s")),
		RetryBackoffMax:   getEnvDuration("RETRY_BACKOFF_MAX", or(file.RetryBackoffMax, "1m")),
		FingerprintPolicy: policy,
		MaxDimension:      getEnvInt("VISION_MAX_DIMENSION", orInt(file.MaxDimension, media.DefaultVisionDimension)),

		OllamaServer:          getEnv("OLLAMA_SERVER", or(file.Ollama.Server, vision.DefaultServer)),
		OllamaModel:           getEnv("OLLAMA_MODEL", or(file.Ollama.Model, vision.DefaultModel)),
		OllamaTimeout:         getEnvDuration("OLLAMA_TIMEOUT", or(file.Ollama.Timeout, vision.DefaultTimeout.String())),
		OllamaPrompt:          getEnv("OLLAMA_PROMPT", or(file.Ollama.Prompt, vision.DefaultPrompt)),
		OllamaTemperature:     getEnvFloat("OLLAMA_TEMPERATURE", orFloat(file.Ollama.Temperature, vision.DefaultTemperature)),
		OllamaHealthCheck:     getEnvBool("OLLAMA_HEALTH_CHECK", orBool(file.Ollama.HealthCheck, true)),
		OllamaRestartCmd:      getEnv("OLLAMA_RESTART_CMD", file.Ollama.RestartCommand),
		OllamaRestartCooldown: getEnvDuration("OLLAMA_RESTART_COOLDOWN", or(file.Ollama.RestartCooldown, vision.DefaultRestartCooldown.String())),

		WriteMetadata:       getEnvBool("WRITE_METADATA", orBool(file.Metadata.Enabled, true)),
		MetadataStrategies:  splitList(getEnv("METADATA_STRATEGIES", or(strings.Join(file.Metadata.Strategies, ","), "xmp,exiftool,exiv2"))),
		MetadataToolTimeout: getEnvDuration("METADATA_TOOL_TIMEOUT", or(file.Metadata.ToolTimeout, metadata.DefaultToolTimeout.String())),

		SearchEnabled: getEnvBool("SEARCH_ENABLED", orBool(file.SearchEnabled, true)),
		DatabasePath:  filepath.Join(databaseDir, "image-tagger.db"),
	}
	if config.SearchEnabled {
		config.SearchIndexPath = filepath.Join(databaseDir, "descriptions.bleve")
	}
	if config.MaxAttempts < 1 {
		logging.Warn("  Invalid MAX_ATTEMPTS %d, using 1", config.MaxAttempts)
		config.MaxAttempts = 1
	}

	return config, nil
}

func logConfig(c *Config) {
	if c.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:          %s", c.ConfigFile)
	}
	logging.Info("  DATABASE_DIR:         %s", c.DatabaseDir)
	logging.Info("  PORT:                 %s", c.Port)
	logging.Info("  METRICS_PORT:         %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", c.MetricsEnabled)
	logging.Info("  WATCH_FOLDERS:        %d folder(s)", len(c.Folders))
	logging.Info("  SCAN_ON_STARTUP:      %v", c.ScanOnStartup)
	logging.Info("  SCAN_INTERVAL:        %v", c.ScanInterval)
	logging.Info("  WATCH_ENABLED:        %v", c.WatchEnabled)
	logging.Info("  WATCH_DEBOUNCE:       %v", c.WatchDebounce)
	logging.Info("  BATCH_SIZE:           %d", c.BatchSize)
	logging.Info("  BATCH_DELAY:          %v", c.BatchDelay)
	logging.Info("  PROCESSING_WORKERS:   %d", c.Workers)
	logging.Info("  MAX_ATTEMPTS:         %d", c.MaxAttempts)
	logging.Info("  RETRY_BACKOFF:        %v (max %v)", c.RetryBackoff, c.RetryBackoffMax)
	logging.Info("  FINGERPRINT_POLICY:   %s", c.FingerprintPolicy)
	logging.Info("  OLLAMA_SERVER:        %s", c.OllamaServer)
	logging.Info("  OLLAMA_MODEL:         %s", c.OllamaModel)
	logging.Info("  OLLAMA_TIMEOUT:       %v", c.OllamaTimeout)
	logging.Info("  OLLAMA_HEALTH_CHECK:  %v", c.OllamaHealthCheck)
	if c.OllamaRestartCmd != "" {
		logging.Info("  OLLAMA_RESTART_CMD:   set (cooldown %v)", c.OllamaRestartCooldown)
	}
	logging.Info("  WRITE_METADATA:       %v (%s)", c.WriteMetadata, strings.Join(c.MetadataStrategies, ", "))
	logging.Info("  SEARCH_ENABLED:       %v", c.SearchEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())
}

// resolveFolders parses WATCH_FOLDERS ("path[:norecurse],...") or falls
// back to the file's folder list. Paths are made absolute.
func resolveFolders(env string, fromFile []FolderConfig) ([]FolderConfig, error) {
	var folders []FolderConfig
	if strings.TrimSpace(env) != "" {
		for _, item := range splitList(env) {
			f := FolderConfig{Path: item, Recursive: true}
			if path, ok := strings.CutSuffix(item, ":norecurse"); ok {
				f = FolderConfig{Path: path, Recursive: false}
			}
			folders = append(folders, f)
		}
	} else {
		folders = append(folders, fromFile...)
	}

	for i := range folders {
		abs, err := filepath.Abs(folders[i].Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve folder path %s: %w", folders[i].Path, err)
		}
		folders[i].Path = abs
	}
	return folders, nil
}

func checkFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func or(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func orInt(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func orFloat(value *float64, defaultValue float64) float64 {
	if value != nil {
		return *value
	}
	return defaultValue
}

func orBool(value *bool, defaultValue bool) bool {
	if value != nil {
		return *value
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses key, or defaultValue when unset. An invalid value
// falls back to the default.
func getEnvDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err == nil {
		return d
	}
	logging.Warn("Invalid duration for %s: %q, using default: %s", key, value, defaultValue)
	d, err = time.ParseDuration(defaultValue)
	if err != nil {
		return 0
	}
	return d
}
