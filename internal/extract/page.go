package extract

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// PageFetcher retrieves the raw body of a single page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// CollyPageFetcher implements PageFetcher with a Colly collector.
type CollyPageFetcher struct {
	userAgent     string
	timeout       time.Duration
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// NewCollyPageFetcher builds a page fetcher. A zero timeout defaults to
// 15 seconds.
func NewCollyPageFetcher(userAgent string, timeout time.Duration) *CollyPageFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(transport)
	return &CollyPageFetcher{
		userAgent:     userAgent,
		timeout:       timeout,
		transport:     transport,
		baseCollector: c,
	}
}

// ctxTransport binds every request to the caller's context so that
// cancellation aborts the in-flight fetch instead of orphaning it.
type ctxTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// FetchPage downloads url and returns its body.
func (f *CollyPageFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	collector.WithTransport(&ctxTransport{base: f.transport, ctx: ctx})
	if f.userAgent != "" {
		collector.UserAgent = f.userAgent
	}
	collector.IgnoreRobotsTxt = true
	timeout := f.timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response for %s: %w", url, fetchErr)
		}
		return body, nil
	}
}
