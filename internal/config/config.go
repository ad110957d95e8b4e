package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

type Config struct {
	// input/output
	Input      string `json:"input,omitempty"`
	Output     string `json:"output,omitempty"` // appended to, never truncated
	ShowErrors bool   `json:"show_errors,omitempty"`

	// logging
	LogToFile bool   `json:"log_to_file,omitempty"`
	LogDir    string `json:"log_dir,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`

	// hashing
	Suffix       string `json:"suffix,omitempty"`
	Digest       string `json:"digest,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
	ChunkSize    string `json:"chunk_size,omitempty"`     // 64KB, 1MB, etc
	MaxEntrySize string `json:"max_entry_size,omitempty"` // larger entries are skipped, 0 means no limit

	// fetching
	AcceptTypes []string `json:"accept_types,omitempty"`
	RateLimit   string   `json:"rate_limit,omitempty"` // 200/minute or 10/second
	Proxy       string   `json:"proxy,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
	CacheDir    string   `json:"cache_dir,omitempty"`

	// scheduling
	Interval string `json:"interval,omitempty"`

	// server
	Serve       bool   `json:"serve,omitempty"`
	BindAddress string `json:"bind_address,omitempty"`
	Port        string `json:"port,omitempty"`

	Path string `json:"-"` // Path to the config folder, empty when running from flags only
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

func (c *Config) loadConfig() error {
	c.Path = configPath
	if c.Path == "" {
		// flags only
		c.setDefaults()
		return nil
	}
	file, err := os.ReadFile(c.JsonFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("Config file not found, creating a new one at %s\n", c.JsonFile())
			if err := c.createConfig(c.Path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			return c.Save()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := json.Unmarshal(file, &c); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	c.setDefaults()
	return nil
}

func validateSizes(c *Config) error {
	if _, err := ParseSize(c.ChunkSize); err != nil {
		return fmt.Errorf("invalid chunk_size: %w", err)
	}
	if size, _ := ParseSize(c.ChunkSize); size <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.MaxEntrySize != "" {
		if _, err := ParseSize(c.MaxEntrySize); err != nil {
			return fmt.Errorf("invalid max_entry_size: %w", err)
		}
	}
	return nil
}

func validateFetch(c *Config) error {
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy url: %s", c.Proxy)
		}
	}
	if c.RateLimit != "" && !strings.Contains(c.RateLimit, "/") {
		return fmt.Errorf("invalid rate_limit %q, expected <count>/<unit>", c.RateLimit)
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	return nil
}

func validateServer(c *Config) error {
	if !c.Serve {
		return nil
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port: %s", c.Port)
	}
	return nil
}

func ValidateConfig(config *Config) error {
	if config.Input == "" && !config.Serve {
		return errors.New("input list is required")
	}
	if config.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if config.Suffix == "" {
		return errors.New("suffix cannot be empty")
	}

	if err := validateSizes(config); err != nil {
		return err
	}

	if err := validateFetch(config); err != nil {
		return err
	}

	if err := validateServer(config); err != nil {
		return err
	}

	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{} // Initialize instance first
		if err := instance.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration Error: %v\n", err)
			os.Exit(1)
		}
	})
	return instance
}

func (c *Config) GetChunkSize() int {
	s, err := ParseSize(c.ChunkSize)
	if err != nil || s <= 0 {
		return 64 * 1024
	}
	return int(s)
}

func (c *Config) GetMaxEntrySize() int64 {
	// 0 means no limit
	if c.MaxEntrySize == "" {
		return 0
	}
	s, err := ParseSize(c.MaxEntrySize)
	if err != nil {
		return 0
	}
	return s
}

func (c *Config) GetTimeout() time.Duration {
	// 0 means no timeout; a container may legitimately take a long time
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) setDefaults() {
	c.Output = cmp.Or(c.Output, "output.txt")
	c.LogDir = cmp.Or(c.LogDir, "logs")
	c.LogLevel = cmp.Or(c.LogLevel, "info")

	c.Suffix = cmp.Or(c.Suffix, ".pk3")
	c.Digest = cmp.Or(c.Digest, "sha1")
	c.ChunkSize = cmp.Or(c.ChunkSize, "64KB")
	if c.Concurrency == 0 {
		c.Concurrency = 1 // keeps console output in list order
	}

	if len(c.AcceptTypes) == 0 {
		c.AcceptTypes = getDefaultAcceptTypes()
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}

	c.Port = cmp.Or(c.Port, "8383")
}

func (c *Config) Save() error {

	c.setDefaults()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.JsonFile(), data, 0644); err != nil {
		return err
	}
	return nil
}

func (c *Config) createConfig(path string) error {
	// Create the directory if it doesn't exist
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c.Path = path
	c.Output = "output.txt"
	c.LogLevel = "info"
	c.Suffix = ".pk3"
	c.Digest = "sha1"
	c.Concurrency = 1
	return nil
}

// Reload forces a reload of the configuration from disk
func Reload() {
	instance = nil
	once = sync.Once{}
}

func getDefaultAcceptTypes() []string {
	return []string{"application/zip", "application/octet-stream"}
}
