package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirrobot01/pakscan/cmd/pakscan"
	"github.com/sirrobot01/pakscan/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("pakscan", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pakscan --input <list> [--output <path>] [--errors] [--log]\n\n")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "path to the config folder (config.json)")
	fs.StringP("input", "i", "", "list of containers, one \"name url\" per line")
	fs.StringP("output", "o", "output.txt", "file the hashes are appended to")
	fs.BoolP("errors", "e", false, "show per-container errors")
	fs.BoolP("log", "l", false, "also write logs to a file")
	fs.String("log-level", "info", "log level")
	fs.IntP("concurrency", "c", 1, "containers fetched at once")
	fs.String("digest", "sha1", "digest algorithm: sha1, sha256, sha3-256, blake2b-256, blake3")
	fs.String("suffix", ".pk3", "entry name suffix to hash")
	fs.String("cache-dir", "", "download containers here before scanning")
	fs.String("interval", "", "repeat the run on this interval (1h, 30m, 04:00, cron)")
	fs.Bool("serve", false, "serve the HTTP API")
	fs.String("port", "8383", "HTTP API port")
	_ = fs.Parse(os.Args[1:])

	config.SetConfigPath(*configPath)
	cfg := config.Get()
	if err := cfg.ApplyFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Input == "" && !cfg.Serve {
		fs.Usage()
		os.Exit(0)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pakscan.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
