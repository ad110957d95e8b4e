package wire

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/utils"
)

// CacheFetcher downloads containers into a local directory before scanning
// them. Partial downloads are resumed, and a container that is already
// complete on disk is not transferred again.
type CacheFetcher struct {
	dir         string
	client      *grab.Client
	acceptTypes []string
	progress    func(url string, downloaded, total, speed int64)
	logger      zerolog.Logger
	tick        time.Duration
}

type CacheOption func(*CacheFetcher)

func WithHTTPClient(hc *http.Client) CacheOption {
	return func(c *CacheFetcher) {
		c.client.HTTPClient = hc
	}
}

func WithProgress(fn func(url string, downloaded, total, speed int64)) CacheOption {
	return func(c *CacheFetcher) {
		c.progress = fn
	}
}

func WithCacheLogger(l zerolog.Logger) CacheOption {
	return func(c *CacheFetcher) {
		c.logger = l
	}
}

func NewCacheFetcher(dir string, acceptTypes []string, opts ...CacheOption) (*CacheFetcher, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	c := &CacheFetcher{
		dir: dir,
		client: &grab.Client{
			UserAgent: userAgent,
			HTTPClient: &http.Client{
				Transport: &http.Transport{
					Proxy: http.ProxyFromEnvironment,
				},
				CheckRedirect: redirectPolicy,
			},
		},
		acceptTypes: acceptTypes,
		logger:      zerolog.Nop(),
		tick:        2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Path returns the cache file used for url.
func (c *CacheFetcher) Path(url string) string {
	sum := sha1.Sum([]byte(url))
	name := utils.BaseURLName(url)
	if name == "" {
		name = "container"
	}
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8])+"-"+name)
}

func (c *CacheFetcher) Fetch(ctx context.Context, url string) (*Body, error) {
	dst := c.Path(url)
	if err := c.grab(ctx, url, dst); err != nil {
		return nil, err
	}
	f, err := os.Open(dst)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return &Body{ReadCloser: f, ContentLength: size}, nil
}

func (c *CacheFetcher) grab(ctx context.Context, url, dst string) error {
	req, err := grab.NewRequest(dst, url)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	req = req.WithContext(ctx)
	req.HTTPRequest.Header.Set("Accept", "application/octet-stream")
	req.BeforeCopy = func(resp *grab.Response) error {
		ct := resp.HTTPResponse.Header.Get("Content-Type")
		if !acceptable(c.acceptTypes, ct) {
			return fmt.Errorf("%w: %s", ErrNotAcceptable, ct)
		}
		return nil
	}

	resp := c.client.Do(req)

	t := time.NewTicker(c.tick)
	defer t.Stop()

	var lastReported int64
Loop:
	for {
		select {
		case <-t.C:
			current := resp.BytesComplete()
			if current != lastReported {
				c.report(url, current, resp.Size(), int64(resp.BytesPerSecond()))
				lastReported = current
			}
		case <-resp.Done:
			break Loop
		}
	}

	if err := resp.Err(); err != nil {
		fe := &FetchError{URL: url, Err: err}
		if grab.IsStatusCodeError(err) && resp.HTTPResponse != nil {
			fe.StatusCode = resp.HTTPResponse.StatusCode
		}
		// keep partial transfers around for the next attempt to resume
		if fe.StatusCode != 0 || errors.Is(err, ErrNotAcceptable) {
			_ = os.Remove(dst)
		}
		return fe
	}

	c.report(url, resp.BytesComplete(), resp.Size(), 0)
	if resp.DidResume {
		c.logger.Debug().Str("url", url).Msg("Resumed cached download")
	}
	c.logger.Debug().Str("file", resp.Filename).Str("size", utils.FormatSize(resp.Size())).Msg("Cached container")
	return nil
}

func (c *CacheFetcher) report(url string, downloaded, total, speed int64) {
	if c.progress != nil {
		c.progress(url, downloaded, total, speed)
	}
}
