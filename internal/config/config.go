package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dlb configuration.
type Config struct {
	// Mangle engine adapter
	Engine EngineConfig `yaml:"engine"`

	// SQLite clause journal
	Journal JournalConfig `yaml:"journal"`

	// Document import
	Import ImportConfig `yaml:"import"`

	// Import directory watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig configures the Mangle engine adapter.
type EngineConfig struct {
	// FactLimit caps the facts created by one evaluation. Zero means unlimited.
	FactLimit int `yaml:"fact_limit"`
}

// JournalConfig configures the clause journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path    string `yaml:"path"`   // relative paths resolve against the workspace
}

// ImportConfig configures document import.
type ImportConfig struct {
	// Parallelism bounds how many documents are parsed at once.
	Parallelism int `yaml:"parallelism"`
}

// WatchConfig configures the import directory watcher.
type WatchConfig struct {
	Dir      string `yaml:"dir"`
	Debounce string `yaml:"debounce"`
}

// Journal drivers.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			FactLimit: 1000000,
		},
		Journal: JournalConfig{
			Enabled: true,
			Driver:  DriverCGO,
			Path:    filepath.Join(".dlb", "journal.db"),
		},
		Import: ImportConfig{
			Parallelism: 4,
		},
		Watch: WatchConfig{
			Dir:      "kb",
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults, with environment overrides applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("DLB_JOURNAL_PATH"); path != "" {
		c.Journal.Path = path
	}
	if driver := os.Getenv("DLB_JOURNAL_DRIVER"); driver != "" {
		c.Journal.Driver = driver
	}
	if limit := os.Getenv("DLB_FACT_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			c.Engine.FactLimit = n
		}
	}
	if level := os.Getenv("DLB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if debug := os.Getenv("DLB_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetWatchDebounce returns the watcher debounce as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// JournalPath resolves the journal path against the workspace.
func (c *Config) JournalPath(workspace string) string {
	if filepath.IsAbs(c.Journal.Path) {
		return c.Journal.Path
	}
	return filepath.Join(workspace, c.Journal.Path)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.FactLimit < 0 {
		return fmt.Errorf("engine.fact_limit must not be negative: %d", c.Engine.FactLimit)
	}
	if c.Journal.Enabled {
		if c.Journal.Driver != DriverCGO && c.Journal.Driver != DriverPure {
			return fmt.Errorf("invalid journal driver: %s (valid: %s, %s)", c.Journal.Driver, DriverCGO, DriverPure)
		}
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path is required when the journal is enabled")
		}
	}
	if c.Import.Parallelism < 1 {
		return fmt.Errorf("import.parallelism must be at least 1: %d", c.Import.Parallelism)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if strings.EqualFold(c.Logging.Level, l) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}

// DefaultConfigPath returns the default path to .dlb/config.yaml.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(".dlb", "config.yaml")
	}
	return filepath.Join(root, ".dlb", "config.yaml")
}

// FindWorkspaceRoot walks up from the working directory looking for a .dlb
// directory. If none is found, returns the current working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".dlb")); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}
