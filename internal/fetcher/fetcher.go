// Package fetcher implements retrieval of reference documents with bounded
// retries and content-addressed persistence.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpproxy"

	"github.com/tollwatch/scraiper/internal/toll"
)

// ProxyConfig carries the three independently optional proxy values.
type ProxyConfig struct {
	HTTP    string
	HTTPS   string
	NoProxy string
}

// Config controls Fetcher behavior.
type Config struct {
	Timeout           time.Duration
	Proxy             ProxyConfig
	Headers           http.Header
	ContentType       string
	BackoffInitial    time.Duration
	BackoffMultiplier float64
	MaxAttempts       int
}

// Fetcher issues HTTP GETs with exponential backoff and writes successful
// bodies to the content store under the Namer key.
type Fetcher struct {
	client *http.Client
	store  toll.BlobStore
	namer  toll.Namer
	clock  toll.Clock
	cfg    Config
	logger *zap.Logger

	// sleep waits for the backoff delay; injectable for tests. It must
	// return early with the context error when the context is canceled.
	sleep func(ctx context.Context, d time.Duration) error
}

// Error reports a URL whose retry budget was exhausted.
type Error struct {
	URL      string
	Attempts int
	Last     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *Error) Unwrap() error { return e.Last }

// New constructs a Fetcher.
func New(cfg Config, store toll.BlobStore, namer toll.Namer, clock toll.Clock, logger *zap.Logger) (*Fetcher, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if namer == nil {
		return nil, fmt.Errorf("namer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 15 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/pdf"
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newTransport(cfg.Proxy),
	}
	return &Fetcher{
		client: client,
		store:  store,
		namer:  namer,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}, nil
}

// Fetch retrieves one URL, retrying transient failures with exponential
// backoff until success or the attempt budget runs out. The backoff delay
// starts at BackoffInitial and is multiplied by BackoffMultiplier after each
// failed attempt. Cancellation is honored before every retry sleep.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (toll.FetchResult, error) {
	start := time.Now()
	delay := f.cfg.BackoffInitial
	var lastErr error

	for attempt := 1; ; attempt++ {
		fetchAttempts.Inc()
		body, status, err := f.attempt(ctx, rawURL)
		if err == nil {
			key := f.namer.Name(rawURL)
			uri, putErr := f.store.PutObject(ctx, key+".pdf", f.cfg.ContentType, body)
			if putErr != nil {
				fetchFailures.Inc()
				return toll.FetchResult{}, fmt.Errorf("store artifact for %s: %w", rawURL, putErr)
			}
			fetchSuccesses.Inc()
			f.logger.Debug("fetched artifact",
				zap.String("url", rawURL),
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
			)
			return toll.FetchResult{
				URL:        rawURL,
				Key:        key,
				BlobURI:    uri,
				StatusCode: status,
				Attempts:   attempt,
				FetchedAt:  f.clock.Now(),
				Duration:   time.Since(start),
			}, nil
		}

		lastErr = err
		f.logger.Warn("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if attempt >= f.cfg.MaxAttempts {
			fetchFailures.Inc()
			return toll.FetchResult{}, &Error{URL: rawURL, Attempts: attempt, Last: lastErr}
		}
		fetchRetries.Inc()
		if err := f.sleep(ctx, delay); err != nil {
			return toll.FetchResult{}, fmt.Errorf("fetch %s canceled during backoff: %w", rawURL, err)
		}
		delay = time.Duration(float64(delay) * f.cfg.BackoffMultiplier)
	}
}

// attempt performs one GET. Success requires a 2xx status and a non-empty
// Content-Type header; anything else is a transient failure.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") == "" {
		return nil, resp.StatusCode, fmt.Errorf("response has no content type")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func newTransport(proxy ProxyConfig) *http.Transport {
	t := &http.Transport{
		Proxy: proxyFunc(proxy),
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	return t
}

// proxyFunc honors the configured proxy bundle; when all three values are
// empty it falls back to the process environment.
func proxyFunc(proxy ProxyConfig) func(*http.Request) (*url.URL, error) {
	if proxy.HTTP == "" && proxy.HTTPS == "" && proxy.NoProxy == "" {
		return http.ProxyFromEnvironment
	}
	cfg := &httpproxy.Config{
		HTTPProxy:  proxy.HTTP,
		HTTPSProxy: proxy.HTTPS,
		NoProxy:    proxy.NoProxy,
	}
	fn := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
