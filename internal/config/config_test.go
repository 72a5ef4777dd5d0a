package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.Threshold != 60 {
		t.Errorf("threshold = %d, want default 60", cfg.Risk.Threshold)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[risk]
threshold = 45
learning = false

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.Threshold != 45 {
		t.Errorf("threshold = %d, want 45", cfg.Risk.Threshold)
	}
	if cfg.Risk.Learning {
		t.Error("learning should be disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	// Unset sections keep defaults.
	if cfg.Biometric.PromptTimeoutSec != 30 {
		t.Errorf("prompt timeout = %d, want default 30", cfg.Biometric.PromptTimeoutSec)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "risk:\n  threshold: 70\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.Threshold != 70 {
		t.Errorf("threshold = %d, want 70", cfg.Risk.Threshold)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Risk.Threshold = 0 }},
		{"threshold over 100", func(c *Config) { c.Risk.Threshold = 101 }},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }},
		{"negative typical amount", func(c *Config) { c.Risk.TypicalAmountFallback = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"file output without path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("C2PAY_STORAGE_PATH", "/tmp/override.db")
	t.Setenv("C2PAY_LOG_LEVEL", "error")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadOrCreateWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	if !created {
		t.Error("expected file creation")
	}
	if cfg.Risk.Threshold != 60 {
		t.Errorf("threshold = %d", cfg.Risk.Threshold)
	}

	if _, _, err := LoadOrCreate(path); err != nil {
		t.Fatalf("second load: %v", err)
	}
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[risk]\nthreshold = 60\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer l.Close()

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[risk]\nthreshold = 42\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Risk.Threshold != 42 {
			t.Errorf("reloaded threshold = %d, want 42", cfg.Risk.Threshold)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if l.Config().Risk.Threshold != 42 {
		t.Errorf("current config not updated")
	}
}
