package wire

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/sirrobot01/pakscan/internal/request"
	"github.com/sirrobot01/pakscan/internal/utils"
)

const (
	MaxRedirects = 10
	userAgent    = "pakscan"
)

// Body is an open container stream.
type Body struct {
	io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Body, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (*Body, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Body, error) {
	return f(ctx, url)
}

func redirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", MaxRedirects)
	}
	return nil
}

// HTTPFetcher streams containers straight from the response body.
type HTTPFetcher struct {
	client      *request.Client
	acceptTypes []string
}

// NewHTTPFetcher builds a streaming fetcher. An empty acceptTypes accepts any
// content type. The client never times out on its own unless a timeout option
// is passed, since a body may legitimately stream for a long time.
func NewHTTPFetcher(acceptTypes []string, opts ...request.ClientOption) *HTTPFetcher {
	base := []request.ClientOption{
		request.WithTimeout(0),
		request.WithRedirectPolicy(redirectPolicy),
		request.WithHeaders(map[string]string{
			"Accept":     "application/octet-stream",
			"User-Agent": userAgent,
		}),
		request.WithRetryableStatus(http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
	}
	return &HTTPFetcher{
		client:      request.New(append(base, opts...)...),
		acceptTypes: acceptTypes,
	}
}

// HTTPClient exposes the configured client so downloads can share its
// proxy and redirect settings.
func (f *HTTPFetcher) HTTPClient() *http.Client {
	return f.client.HTTPClient()
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrStatus, resp.Status),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !acceptable(f.acceptTypes, contentType) {
		_ = resp.Body.Close()
		return nil, &FetchError{URL: url, Err: fmt.Errorf("%w: %s", ErrNotAcceptable, contentType)}
	}

	return &Body{
		ReadCloser:    resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

// acceptable treats a missing content type as acceptable; servers often omit
// it for binary downloads.
func acceptable(accept []string, contentType string) bool {
	if contentType == "" || len(accept) == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return utils.ContainsFold(accept, mediaType)
}

// ProgressReader counts bytes read through it and reports at most once per
// interval, plus once at EOF.
type ProgressReader struct {
	r        io.Reader
	total    int64
	read     int64
	start    time.Time
	last     time.Time
	interval time.Duration
	report   func(read, total, speed int64)
	finished bool
}

func NewProgressReader(r io.Reader, total int64, report func(read, total, speed int64)) *ProgressReader {
	now := time.Now()
	return &ProgressReader{
		r:        r,
		total:    total,
		start:    now,
		last:     now,
		interval: 500 * time.Millisecond,
		report:   report,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	now := time.Now()
	switch {
	case err == io.EOF && !p.finished:
		p.finished = true
		p.emit(now)
	case now.Sub(p.last) >= p.interval:
		p.emit(now)
	}
	return n, err
}

func (p *ProgressReader) emit(now time.Time) {
	p.last = now
	if p.report == nil {
		return
	}
	var speed int64
	if elapsed := now.Sub(p.start).Seconds(); elapsed > 0 {
		speed = int64(float64(p.read) / elapsed)
	}
	p.report(p.read, p.total, speed)
}

// BytesRead returns the number of bytes read so far.
func (p *ProgressReader) BytesRead() int64 {
	return p.read
}
