package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"
	"golang.org/x/net/proxy"
)

type ClientOption func(*Client)

// Client wraps http.Client with rate limiting, static headers and retries on
// transport errors and selected status codes.
type Client struct {
	client          *http.Client
	rateLimiter     ratelimit.Limiter
	headers         map[string]string
	headersMu       sync.RWMutex
	maxRetries      int
	timeout         time.Duration
	retryableStatus map[int]struct{}
	logger          zerolog.Logger
	proxy           string
	transport       *http.Transport
	redirectPolicy  func(req *http.Request, via []*http.Request) error
	backoff         time.Duration
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithRedirectPolicy(policy func(req *http.Request, via []*http.Request) error) ClientOption {
	return func(c *Client) {
		c.redirectPolicy = policy
	}
}

func WithRateLimiter(rl ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headersMu.Lock()
		defer c.headersMu.Unlock()
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithRetryableStatus(statusCodes ...int) ClientOption {
	return func(c *Client) {
		for _, code := range statusCodes {
			c.retryableStatus[code] = struct{}{}
		}
	}
}

// WithProxy accepts http(s):// and socks5:// proxy URLs. An empty string
// falls back to the environment.
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxy = proxyURL
	}
}

func WithTransport(transport *http.Transport) ClientOption {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithBackoff sets the base delay between retries; it doubles per attempt.
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.backoff = d
	}
}

func New(options ...ClientOption) *Client {
	c := &Client{
		headers:         make(map[string]string),
		maxRetries:      3,
		timeout:         60 * time.Second,
		retryableStatus: map[int]struct{}{},
		logger:          zerolog.Nop(),
		backoff:         500 * time.Millisecond,
	}
	for _, opt := range options {
		opt(c)
	}

	transport := c.transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
		if err := c.applyProxy(transport); err != nil {
			c.logger.Error().Err(err).Str("proxy", c.proxy).Msg("Failed to configure proxy, connecting directly")
			transport.Proxy = nil
			transport.DialContext = (&net.Dialer{Timeout: 30 * time.Second}).DialContext
		}
	}

	c.client = &http.Client{
		Transport:     transport,
		Timeout:       c.timeout,
		CheckRedirect: c.redirectPolicy,
	}
	return c
}

func (c *Client) applyProxy(transport *http.Transport) error {
	if c.proxy == "" {
		transport.Proxy = http.ProxyFromEnvironment
		return nil
	}
	u, err := url.Parse(c.proxy)
	if err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create socks dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	return nil
}

func (c *Client) SetHeader(key, value string) {
	c.headersMu.Lock()
	defer c.headersMu.Unlock()
	c.headers[key] = value
}

func (c *Client) isRetryableStatus(code int) bool {
	_, ok := c.retryableStatus[code]
	return ok
}

// Do sends req, retrying transport errors and retryable statuses up to
// maxRetries times. Requests with a body are only retried when GetBody is set.
// The last response is returned as is, even when its status was retryable.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.headersMu.RLock()
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	c.headersMu.RUnlock()

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.Body != nil && req.Body != http.NoBody {
				if req.GetBody == nil {
					break
				}
				body, berr := req.GetBody()
				if berr != nil {
					return nil, berr
				}
				req.Body = body
			}
			if werr := c.wait(req.Context(), attempt); werr != nil {
				return nil, werr
			}
		}

		if c.rateLimiter != nil {
			c.rateLimiter.Take()
		}

		resp, err = c.client.Do(req)
		if err != nil {
			if !isRetryableError(err) {
				return nil, err
			}
			c.logger.Debug().Err(err).Int("attempt", attempt+1).Str("url", req.URL.String()).Msg("Request failed, retrying")
			continue
		}

		if !c.isRetryableStatus(resp.StatusCode) || attempt == c.maxRetries {
			return resp, nil
		}
		c.logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", req.URL.String()).Msg("Retryable status, retrying")
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		resp = nil
	}
	if err != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("max retries exceeded for %s", req.URL)
	}
	return resp, nil
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	d := c.backoff << (attempt - 1)
	if d > 0 {
		d += rand.N(d/2 + 1)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// redirect policy rejections are final
		if strings.Contains(urlErr.Err.Error(), "redirect") {
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// ParseRateLimit parses "10/second", "200/minute" or "1000/hour". It returns
// nil for an empty or malformed value, which disables limiting.
func ParseRateLimit(rateStr string) ratelimit.Limiter {
	if rateStr == "" {
		return nil
	}
	parts := strings.SplitN(rateStr, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return nil
	}
	unit := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parts[1])), "s")
	var per time.Duration
	switch unit {
	case "second", "sec":
		per = time.Second
	case "minute", "min":
		per = time.Minute
	case "hour", "hr":
		per = time.Hour
	default:
		return nil
	}
	return ratelimit.New(count, ratelimit.Per(per), ratelimit.WithSlack(count/10))
}

func JSONResponse(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// HTTPClient exposes the underlying client for libraries that drive their own
// requests. Rate limiting and retries do not apply to it.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}
