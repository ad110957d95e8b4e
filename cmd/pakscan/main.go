package pakscan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/config"
	"github.com/sirrobot01/pakscan/internal/logger"
	"github.com/sirrobot01/pakscan/internal/request"
	"github.com/sirrobot01/pakscan/internal/utils"
	"github.com/sirrobot01/pakscan/pkg/pakhash"
	"github.com/sirrobot01/pakscan/pkg/server"
	"github.com/sirrobot01/pakscan/pkg/wire"
)

type components struct {
	fetcher wire.Fetcher
	bridge  *wire.Bridge
	sink    wire.Sink
}

func Start(ctx context.Context) error {
	cfg := config.Get()
	_log := logger.Default()

	logging := "console"
	if cfg.LogToFile {
		logging = "console + " + logger.GetLogPath()
	}
	fmt.Printf(`
+-------------------------------------------------------+
|  pakscan                                              |
+-------------------------------------------------------+
|  Input:     %s
|  Output:    %s
|  Errors:    %t
|  Digest:    %s
|  Logging:   %s (%s)
+-------------------------------------------------------+
`, cfg.Input, cfg.Output, cfg.ShowErrors, cfg.Digest, logging, cfg.LogLevel)

	c, err := build(cfg)
	if err != nil {
		return err
	}

	switch {
	case cfg.Serve:
		return serve(ctx, cfg, c)
	case cfg.Interval != "":
		return wire.Schedule(ctx, cfg.Interval, _log, func(ctx context.Context) {
			if err := runOnce(ctx, cfg, c); err != nil {
				_log.Error().Err(err).Msg("Scheduled run failed")
			}
		})
	default:
		return runOnce(ctx, cfg, c)
	}
}

func build(cfg *config.Config) (*components, error) {
	algo, err := pakhash.ParseAlgorithm(cfg.Digest)
	if err != nil {
		return nil, err
	}
	pipeline := pakhash.New(
		pakhash.WithSuffix(cfg.Suffix),
		pakhash.WithAlgorithm(algo),
		pakhash.WithLogger(logger.New("pipeline")),
	)

	sink := &wire.LogSink{Logger: logger.New("scan"), ShowErrors: cfg.ShowErrors}
	bridge := wire.NewBridge(pipeline,
		wire.WithChunkSize(cfg.GetChunkSize()),
		wire.WithMaxEntrySize(cfg.GetMaxEntrySize()),
		wire.WithBridgeLogger(logger.New("bridge")),
	)

	fetchLog := logger.New("fetch")
	opts := []request.ClientOption{
		request.WithTimeout(cfg.GetTimeout()),
		request.WithMaxRetries(cfg.MaxRetries),
		request.WithLogger(fetchLog),
	}
	if rl := request.ParseRateLimit(cfg.RateLimit); rl != nil {
		opts = append(opts, request.WithRateLimiter(rl))
	}
	if cfg.Proxy != "" {
		opts = append(opts, request.WithProxy(cfg.Proxy))
	}
	httpFetcher := wire.NewHTTPFetcher(cfg.AcceptTypes, opts...)

	var fetcher wire.Fetcher = httpFetcher
	if cfg.CacheDir != "" {
		cf, err := wire.NewCacheFetcher(cfg.CacheDir, cfg.AcceptTypes,
			wire.WithHTTPClient(httpFetcher.HTTPClient()),
			wire.WithCacheLogger(fetchLog),
			wire.WithProgress(func(url string, downloaded, total, speed int64) {
				sink.Emit(wire.Event{Kind: wire.EventProgress, URL: url, Name: utils.BaseURLName(url), Bytes: downloaded, Total: total, Speed: speed})
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("error creating cache dir: %w", err)
		}
		fetcher = cf
	}
	return &components{fetcher: fetcher, bridge: bridge, sink: sink}, nil
}

func runOnce(ctx context.Context, cfg *config.Config, c *components) error {
	_log := logger.Default()

	list, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("error opening input: %w", err)
	}
	targets, err := wire.ParseList(list)
	list.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Input, err)
	}

	out, err := utils.OpenAppend(cfg.Output)
	if err != nil {
		return fmt.Errorf("error opening output: %w", err)
	}
	defer out.Close()

	summary, err := wire.NewRunner(c.fetcher, c.bridge,
		wire.WithOutput(out),
		wire.WithEvents(c.sink),
		wire.WithConcurrency(cfg.Concurrency),
		wire.WithRunnerLogger(_log),
	).Run(ctx, targets)
	if summary != nil {
		report(_log, summary)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func report(_log zerolog.Logger, s *wire.Summary) {
	_log.Info().Str("run", s.RunID).Dur("elapsed", s.Elapsed).Msgf("Found %d hashes", s.Found)
	if len(s.Failed) == 0 {
		return
	}
	_log.Warn().Msgf("%d/%d containers failed", len(s.Failed), s.Total)
	for _, f := range s.Failed {
		_log.Warn().Str("url", f.URL).Msgf("%s: %s", f.Name, f.Reason)
	}
}

func serve(ctx context.Context, cfg *config.Config, c *components) error {
	_log := logger.Default()

	api := server.NewAPI(c.fetcher, c.bridge,
		server.WithOutputFile(cfg.Output),
		server.WithRunConcurrency(cfg.Concurrency),
		server.WithEventSink(c.sink),
		server.WithLogger(logger.New("api")),
	)
	srv := server.New(map[string]http.Handler{
		"/api": api.Routes(),
	})

	svcCtx, cancelSvc := context.WithCancel(ctx)
	defer cancelSvc()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)
	safeGo := func(f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					_log.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("Recovered from panic in goroutine")
					errChan <- fmt.Errorf("panic: %v", r)
				}
			}()
			if err := f(); err != nil {
				errChan <- err
			}
		}()
	}

	safeGo(func() error {
		return srv.Start(svcCtx)
	})
	if cfg.Interval != "" && cfg.Input != "" {
		safeGo(func() error {
			return wire.Schedule(svcCtx, cfg.Interval, _log, func(ctx context.Context) {
				if err := runOnce(ctx, cfg, c); err != nil {
					_log.Error().Err(err).Msg("Scheduled run failed")
				}
			})
		})
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()

	var first error
	for err := range errChan {
		if err != nil && first == nil {
			_log.Error().Err(err).Msg("Service error detected")
			first = err
			cancelSvc()
		}
	}
	return first
}
