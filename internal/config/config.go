// Package config handles configuration loading, validation, and hot
// reloading for c2pay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds the complete authorization-core configuration.
type Config struct {
	// Storage configuration for the secure key-value store.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Risk configuration for the decision engine.
	Risk RiskConfig `toml:"risk" json:"risk" yaml:"risk"`

	// Biometric configuration for the active challenge backends.
	Biometric BiometricConfig `toml:"biometric" json:"biometric" yaml:"biometric"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the sqlite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// KeyDir is the directory holding the device key material.
	KeyDir string `toml:"key_dir" json:"key_dir" yaml:"key_dir"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// RiskConfig holds decision-engine configuration.
type RiskConfig struct {
	// Threshold is the fused-risk score at which MFA is required.
	Threshold int `toml:"threshold" json:"threshold" yaml:"threshold"`

	// TypicalAmountFallback is the typical amount assumed before any
	// amount has been learned. Zero disables the amount check until a
	// baseline exists.
	TypicalAmountFallback float64 `toml:"typical_amount_fallback" json:"typical_amount_fallback" yaml:"typical_amount_fallback"`

	// Learning enables saving baselines after authorization.
	Learning bool `toml:"learning" json:"learning" yaml:"learning"`
}

// BiometricConfig holds active-challenge configuration.
type BiometricConfig struct {
	// FprintdEnabled enables the fprintd D-Bus backend on Linux.
	FprintdEnabled bool `toml:"fprintd_enabled" json:"fprintd_enabled" yaml:"fprintd_enabled"`

	// PromptTimeoutSec bounds a single platform challenge.
	PromptTimeoutSec int `toml:"prompt_timeout_sec" json:"prompt_timeout_sec" yaml:"prompt_timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "c2pay.db"),
			KeyDir:        filepath.Join(dir, "keys"),
			BusyTimeoutMs: 5000,
		},
		Risk: RiskConfig{
			Threshold:             60,
			TypicalAmountFallback: 0,
			Learning:              true,
		},
		Biometric: BiometricConfig{
			FprintdEnabled:   runtime.GOOS == "linux",
			PromptTimeoutSec: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DataDir returns the base c2pay data directory. C2PAY_DATA_DIR
// overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("C2PAY_DATA_DIR"); envDir != "" {
		return envDir
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Application Support", "c2pay")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "c2pay")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			homeDir, _ := os.UserHomeDir()
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataHome, "c2pay")
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path must not be empty")
	}
	if c.Storage.KeyDir == "" {
		return fmt.Errorf("config: storage.key_dir must not be empty")
	}
	if c.Risk.Threshold < 1 || c.Risk.Threshold > 100 {
		return fmt.Errorf("config: risk.threshold must be in [1,100], got %d", c.Risk.Threshold)
	}
	if c.Risk.TypicalAmountFallback < 0 {
		return fmt.Errorf("config: risk.typical_amount_fallback must not be negative")
	}
	if c.Biometric.PromptTimeoutSec <= 0 {
		return fmt.Errorf("config: biometric.prompt_timeout_sec must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("config: logging.file_path required when output is file")
	}
	return nil
}

// EnsureDirectories creates the directories the core writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		c.Storage.KeyDir,
	}
	if c.Logging.Output == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies C2PAY_-prefixed environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("C2PAY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("C2PAY_KEY_DIR"); v != "" {
		c.Storage.KeyDir = v
	}
	if v := os.Getenv("C2PAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("C2PAY_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
		c.Logging.Output = "file"
	}
}

// SaveConfig writes the configuration to a TOML file.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
