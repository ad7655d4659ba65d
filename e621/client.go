package e621

import (
	"bugmaschine/get621/logging"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	SafeBaseURL      = "https://e926.net"
	NSFWBaseURL      = "https://e621.net"
	DefaultUserAgent = "get621/2.0.0 (by nasso on e621)"
	DefaultCooldown  = 1200 * time.Millisecond
)

type Config struct {
	BaseURL   string
	UserAgent string
	// Cooldown is the minimum gap between the end of one request and the
	// start of the next. Zero means DefaultCooldown.
	Cooldown time.Duration
	// Timeout bounds a whole request, body included. Zero means none.
	Timeout time.Duration

	// Wait and Now replace the real clock, tests use them to count cooldowns.
	Wait func(ctx context.Context, d time.Duration) error
	Now  func() time.Time
}

// Client is the one session of a run. It keeps a single request in flight and
// enforces the cooldown between requests, so it must not be copied and every
// body returned by Open must be closed.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cooldown  time.Duration
	wait      func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	mu       sync.Mutex
	lastDone time.Time
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SafeBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &InvalidArgumentError{Arg: "base url", Msg: fmt.Sprintf("%q is not an absolute URL", cfg.BaseURL)}
	}

	c := &Client{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		cooldown:  cfg.Cooldown,
		wait:      cfg.Wait,
		now:       cfg.Now,
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.cooldown <= 0 {
		c.cooldown = DefaultCooldown
	}
	if c.wait == nil {
		c.wait = sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// Close drops the pooled connections of the session.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// acquire blocks until no request is in flight and the cooldown since the
// previous one has passed. Every successful acquire is paired with release.
func (c *Client) acquire(ctx context.Context) error {
	c.mu.Lock()
	if !c.lastDone.IsZero() {
		if remaining := c.cooldown - c.now().Sub(c.lastDone); remaining > 0 {
			logging.Debug("Cooling down for %v", remaining)
			if err := c.wait(ctx, remaining); err != nil {
				c.mu.Unlock()
				return err
			}
		}
	}
	return nil
}

func (c *Client) release() {
	c.lastDone = c.now()
	c.mu.Unlock()
}

// Open issues a rate limited GET and returns the decoded body. The next
// request can only start once the body is closed.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, body, err := c.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		body.Close()
		return nil, err
	}
	return body, nil
}

// Download copies the file at rawURL into w.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	body, err := c.Open(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}

func (c *Client) open(ctx context.Context, rawURL string) (*http.Response, *body, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.release()
		return nil, nil, &NetworkError{URL: rawURL, Err: err}
	}
	setUseragent(req, c.userAgent)
	req.Header.Set("Accept-Encoding", "br, gzip, deflate")

	logging.Debug("GET %v", rawURL)
	resp, err := c.http.Do(req)
	if err != nil {
		c.release()
		return nil, nil, &NetworkError{URL: rawURL, Err: err}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		c.release()
		return nil, nil, &NetworkError{URL: rawURL, Status: resp.StatusCode, Err: err}
	}
	return resp, &body{reader: reader, raw: resp.Body, url: rawURL, release: c.release}, nil
}

// getJSON fetches an API document. Bodies of non-2xx answers that still carry
// {"success": false} are returned so the caller can report the reason.
func (c *Client) getJSON(ctx context.Context, rawURL string) ([]byte, error) {
	resp, b, err := c.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(b)
	b.Close()
	if err != nil {
		return nil, err
	}

	if statusErr := checkStatus(rawURL, resp.StatusCode); statusErr != nil {
		var failure struct {
			Success *bool `json:"success"`
		}
		if json.Unmarshal(data, &failure) == nil && failure.Success != nil && !*failure.Success {
			return data, nil
		}
		logging.Debug("Response Body: %v", string(data))
		return nil, statusErr
	}
	return data, nil
}

func checkStatus(rawURL string, status int) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusNotImplemented:
		// e621 answers 501 when throttling
		return &NetworkError{URL: rawURL, Status: status, Err: errors.New("rate limit exceeded")}
	case status < 200 || status > 299:
		return &NetworkError{URL: rawURL, Status: status, Err: errors.New(http.StatusText(status))}
	}
	return nil
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		logging.Debug("Server sent gzip compressed response")
		return gzip.NewReader(resp.Body)
	case "deflate":
		logging.Debug("Server sent deflate compressed response")
		return flate.NewReader(resp.Body), nil
	case "compress":
		logging.Debug("Server sent standard compressed response")
		return zlib.NewReader(resp.Body)
	case "br":
		logging.Debug("Server sent brotli compressed response")
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	}
	return io.NopCloser(resp.Body), nil
}

// body ends the request it belongs to when closed.
type body struct {
	reader  io.ReadCloser
	raw     io.Closer
	url     string
	release func()
	once    sync.Once
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	if err != nil && err != io.EOF {
		err = &NetworkError{URL: b.url, Err: err}
	}
	return n, err
}

func (b *body) Close() error {
	var err error
	b.once.Do(func() {
		b.reader.Close()
		err = b.raw.Close()
		b.release()
	})
	return err
}

func setUseragent(req *http.Request, useragent string) {
	req.Header.Set("User-Agent", useragent)
}
