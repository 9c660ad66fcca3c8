package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Output formats understood by the CLI
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatSQLite = "sqlite"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Report output configuration
	Output OutputConfig `toml:"output"`

	// Metrics export configuration
	Metrics MetricsConfig `toml:"metrics"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// OutputConfig controls where and how parsed traces are written
type OutputConfig struct {
	// Output file path; "-" writes to stdout (default: "-")
	Path string `toml:"path"`

	// Output format: "json", "text" or "sqlite" (default: "text")
	Format string `toml:"format"`

	// Remove an existing sqlite database before writing (default: true)
	CleanDatabase bool `toml:"clean_database"`
}

// MetricsConfig controls the Prometheus textfile written after a run
type MetricsConfig struct {
	// Write run metrics to a textfile (default: false)
	Enabled bool `toml:"enabled"`

	// Textfile path, usually inside a node exporter textfile directory
	TextfilePath string `toml:"textfile_path"`
}

// LoggingConfig controls the diagnostic log
type LoggingConfig struct {
	// Log level: "error", "info", "debug" or "trace" (default: "info")
	Level string `toml:"level"`

	// Log format: "console" or "json" (default: "console")
	Format string `toml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Output: OutputConfig{
			Path:          "-",
			Format:        FormatText,
			CleanDatabase: true,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			TextfilePath: "qnxtally.prom",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// GenerateExampleConfig writes the default configuration as a commented TOML file
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# qnxtally example configuration
# Command line flags override the values in this file.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := toml.NewEncoder(file).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	switch c.Output.Format {
	case FormatJSON, FormatText:
	case FormatSQLite:
		if c.Output.Path == "" || c.Output.Path == "-" {
			return fmt.Errorf("output.path must name a file for the sqlite format: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown output.format '%s': %w", c.Output.Format, ErrInvalidConfig)
	}

	if c.Output.Path == "" {
		return fmt.Errorf("output.path cannot be empty: %w", ErrInvalidConfig)
	}

	if c.Metrics.Enabled && c.Metrics.TextfilePath == "" {
		return fmt.Errorf("metrics.textfile_path cannot be empty when metrics are enabled: %w", ErrInvalidConfig)
	}

	if _, ok := LogVerbosity(c.Logging.Level); !ok {
		return fmt.Errorf("unknown logging.level '%s': %w", c.Logging.Level, ErrInvalidConfig)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown logging.format '%s': %w", c.Logging.Format, ErrInvalidConfig)
	}

	return nil
}

// LogVerbosity maps a level name to the logr verbosity that enables it. "error" maps to -1, meaning only
// errors are logged.
func LogVerbosity(level string) (int, bool) {
	switch level {
	case "error":
		return -1, true
	case "info":
		return 0, true
	case "debug":
		return 1, true
	case "trace":
		return 2, true
	}
	return 0, false
}
