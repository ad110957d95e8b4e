package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"T", 1 << 40},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
	{"B", 1},
}

// ParseSize parses human sizes like "64KB", "1.5 GB" or "4096". Units are
// binary, matching utils.FormatSize.
func ParseSize(sizeStr string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(sizeStr))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", sizeStr)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size %q", sizeStr)
	}
	return int64(value * float64(mult)), nil
}

// ApplyFlags copies every flag the user actually set onto c. Flags that were
// left at their defaults never override values from the config file.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetString(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}

	str("input", &c.Input)
	str("output", &c.Output)
	boolean("errors", &c.ShowErrors)
	boolean("log", &c.LogToFile)
	str("log-level", &c.LogLevel)
	str("digest", &c.Digest)
	str("suffix", &c.Suffix)
	str("cache-dir", &c.CacheDir)
	str("interval", &c.Interval)
	boolean("serve", &c.Serve)
	str("port", &c.Port)
	if err == nil && fs.Changed("concurrency") {
		c.Concurrency, err = fs.GetInt("concurrency")
	}
	if err != nil {
		return fmt.Errorf("error reading flags: %w", err)
	}
	c.setDefaults()
	return nil
}
