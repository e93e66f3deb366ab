package startup

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"image-tagger/internal/logging"
)

// fileConfig is the CONFIG_FILE layout. Durations are Go duration strings.
// Pointers distinguish "unset" from false/zero.
type fileConfig struct {
	DatabaseDir       string       `toml:"database_dir"`
	Port              string       `toml:"port"`
	MetricsPort       string       `toml:"metrics_port"`
	MetricsEnabled    *bool        `toml:"metrics_enabled"`
	LogHealthChecks   *bool        `toml:"log_health_checks"`
	ScanOnStartup     *bool        `toml:"scan_on_startup"`
	ScanInterval      string       `toml:"scan_interval"`
	WatchEnabled      *bool        `toml:"watch_enabled"`
	WatchDebounce     string       `toml:"watch_debounce"`
	BatchSize         int          `toml:"batch_size"`
	BatchDelay        string       `toml:"batch_delay"`
	Workers           int          `toml:"workers"`
	QueueSize         int          `toml:"queue_size"`
	MaxAttempts       int          `toml:"max_attempts"`
	RetryBackoff      string       `toml:"retry_backoff"`
	RetryBackoffMax   string       `toml:"retry_backoff_max"`
	FingerprintPolicy string       `toml:"fingerprint_policy"`
	MaxDimension      int          `toml:"max_dimension"`
	SearchEnabled     *bool        `toml:"search_enabled"`
	Folders           []fileFolder `toml:"folders"`

	Ollama struct {
		Server          string   `toml:"server"`
		Model           string   `toml:"model"`
		Timeout         string   `toml:"timeout"`
		Prompt          string   `toml:"prompt"`
		Temperature     *float64 `toml:"temperature"`
		HealthCheck     *bool    `toml:"health_check"`
		RestartCommand  string   `toml:"restart_command"`
		RestartCooldown string   `toml:"restart_cooldown"`
	} `toml:"ollama"`

	Metadata struct {
		Enabled     *bool    `toml:"enabled"`
		Strategies  []string `toml:"strategies"`
		ToolTimeout string   `toml:"tool_timeout"`
	} `toml:"metadata"`
}

type fileFolder struct {
	Path      string `toml:"path"`
	Recursive *bool  `toml:"recursive"`
}

// folders converts the [[folders]] list. Folders are recursive unless the
// entry says otherwise.
func (c fileConfig) folders() []FolderConfig {
	out := make([]FolderConfig, 0, len(c.Folders))
	for _, f := range c.Folders {
		out = append(out, FolderConfig{Path: f.Path, Recursive: orBool(f.Recursive, true)})
	}
	return out
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		logging.Warn("Unknown config key %q in %s", key.String(), path)
	}
	for _, f := range cfg.Folders {
		if f.Path == "" {
			return fileConfig{}, fmt.Errorf("config file %s: folder entry without path", path)
		}
	}
	return cfg, nil
}
