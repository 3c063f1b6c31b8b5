package apistubgen

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig("", dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := DefaultConfig()
	if !slices.Equal(cfg.Packages, want.Packages) || cfg.Output != want.Output || cfg.Debounce != want.Debounce {
		t.Errorf("LoadConfig() = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `packages:
  - ./api/...
  - ./clients
output: client_gen.go
tags: [integration]
debounce: 1s
log_level: debug
fail_on_warnings: true
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("", dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !slices.Equal(cfg.Packages, []string{"./api/...", "./clients"}) {
		t.Errorf("Packages = %v", cfg.Packages)
	}
	if cfg.Output != "client_gen.go" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if !slices.Equal(cfg.Tags, []string{"integration"}) {
		t.Errorf("Tags = %v", cfg.Tags)
	}
	if cfg.Debounce != time.Second {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.LogLevel != "debug" || !cfg.FailOnWarnings {
		t.Errorf("LogLevel = %q, FailOnWarnings = %v", cfg.LogLevel, cfg.FailOnWarnings)
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("output: custom_gen.go\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path, "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output != "custom_gen.go" {
		t.Errorf("Output = %q", cfg.Output)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("LoadConfig with a missing explicit file should fail")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("APISTUB_OUTPUT", "env_gen.go")
	t.Setenv("APISTUB_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Output != "env_gen.go" {
		t.Errorf("Output = %q, want env_gen.go", cfg.Output)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "no packages", modify: func(c *Config) { c.Packages = nil }, wantErr: "packages is required"},
		{name: "empty pattern", modify: func(c *Config) { c.Packages = []string{""} }, wantErr: "packages[0] is required"},
		{name: "output not go", modify: func(c *Config) { c.Output = "gen.ts" }, wantErr: "output must end with .go"},
		{name: "output with dir", modify: func(c *Config) { c.Output = "sub/gen.go" }, wantErr: "output contains a forbidden character"},
		{name: "tag with comma", modify: func(c *Config) { c.Tags = []string{"a,b"} }, wantErr: "forbidden character"},
		{name: "watch and check", modify: func(c *Config) { c.Watch, c.Check = true, true }, wantErr: "watch cannot be combined with check"},
		{name: "negative debounce", modify: func(c *Config) { c.Debounce = -time.Second }, wantErr: "debounce must be at least"},
		{name: "bad level", modify: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
