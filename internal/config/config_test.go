package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"4096", 4096, false},
		{"64KB", 64 * 1024, false},
		{"64kb", 64 * 1024, false},
		{"1.5 GB", 3 << 29, false},
		{"512M", 512 << 20, false},
		{"10B", 10, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGet_WithoutConfigPath(t *testing.T) {
	SetConfigPath("")
	Reload()
	t.Cleanup(Reload)

	cfg := Get()
	if cfg.Output != "output.txt" || cfg.Suffix != ".pk3" || cfg.Digest != "sha1" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Expected concurrency 1, got %d", cfg.Concurrency)
	}
	if cfg.GetChunkSize() != 64*1024 {
		t.Errorf("Expected 64KB chunks, got %d", cfg.GetChunkSize())
	}
	if len(cfg.AcceptTypes) != 2 {
		t.Errorf("Expected default accept types, got %v", cfg.AcceptTypes)
	}
}

func TestGet_ReadsFileAndCreatesMissing(t *testing.T) {
	dir := t.TempDir()
	data, _ := json.Marshal(map[string]any{
		"input":          "list.txt",
		"digest":         "blake3",
		"concurrency":    4,
		"max_entry_size": "512MB",
		"timeout":        "90s",
	})
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
	SetConfigPath(dir)
	Reload()
	t.Cleanup(func() {
		SetConfigPath("")
		Reload()
	})

	cfg := Get()
	if cfg.Input != "list.txt" || cfg.Digest != "blake3" || cfg.Concurrency != 4 {
		t.Errorf("File values not loaded: %+v", cfg)
	}
	if cfg.GetMaxEntrySize() != 512<<20 {
		t.Errorf("Expected 512MB limit, got %d", cfg.GetMaxEntrySize())
	}
	if cfg.GetTimeout().Seconds() != 90 {
		t.Errorf("Expected 90s timeout, got %s", cfg.GetTimeout())
	}
	if cfg.Output != "output.txt" {
		t.Errorf("Expected default output, got %s", cfg.Output)
	}

	fresh := filepath.Join(t.TempDir(), "nested")
	SetConfigPath(fresh)
	Reload()
	_ = Get()
	if _, err := os.Stat(filepath.Join(fresh, "config.json")); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("input", "", "")
	fs.String("output", "output.txt", "")
	fs.Bool("errors", false, "")
	fs.Bool("log", false, "")
	fs.String("digest", "sha1", "")
	fs.String("suffix", ".pk3", "")
	fs.Int("concurrency", 1, "")
	if err := fs.Parse([]string{"--input", "maps.txt", "--errors", "--concurrency=3"}); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Output: "hashes.txt", Digest: "sha256"}
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatalf("ApplyFlags failed: %v", err)
	}
	if cfg.Input != "maps.txt" || !cfg.ShowErrors || cfg.Concurrency != 3 {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	// unchanged flags keep file values
	if cfg.Output != "hashes.txt" || cfg.Digest != "sha256" {
		t.Errorf("Unset flags overrode file values: output=%s digest=%s", cfg.Output, cfg.Digest)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		c := &Config{Input: "list.txt"}
		c.setDefaults()
		return c
	}
	tests := map[string]struct {
		mutate  func(c *Config)
		wantErr bool
	}{
		"defaults":           {func(c *Config) {}, false},
		"missing input":      {func(c *Config) { c.Input = "" }, true},
		"serve needs none":   {func(c *Config) { c.Input = ""; c.Serve = true }, false},
		"bad port":           {func(c *Config) { c.Serve = true; c.Port = "http" }, true},
		"zero concurrency":   {func(c *Config) { c.Concurrency = 0 }, true},
		"bad chunk":          {func(c *Config) { c.ChunkSize = "big" }, true},
		"zero chunk":         {func(c *Config) { c.ChunkSize = "0" }, true},
		"bad entry limit":    {func(c *Config) { c.MaxEntrySize = "huge" }, true},
		"bad timeout":        {func(c *Config) { c.Timeout = "soon" }, true},
		"bad proxy":          {func(c *Config) { c.Proxy = "localhost" }, true},
		"socks proxy":        {func(c *Config) { c.Proxy = "socks5://127.0.0.1:1080" }, false},
		"bad rate limit":     {func(c *Config) { c.RateLimit = "10" }, true},
		"negative retries":   {func(c *Config) { c.MaxRetries = -1 }, true},
		"empty suffix":       {func(c *Config) { c.Suffix = "" }, true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := ValidateConfig(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
