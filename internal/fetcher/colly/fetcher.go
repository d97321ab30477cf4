// Package collyfetcher implements the asset Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/landingzip/bundler/internal/bundle"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements bundle.Fetcher using the Colly collector. Each
// Fetch clones the base collector, so the same URL can be downloaded
// any number of times across runs.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch downloads one asset. Failures come back as *bundle.FetchError
// so the coordinator can classify them.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.WithTransport(f.transport)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, &bundle.FetchError{Kind: bundle.FetchTimeout, URL: url, Cause: ctx.Err()}
	case err := <-done:
		if err == nil && fetchErr == nil {
			return body, nil
		}
		if fetchErr == nil {
			fetchErr = err
		}
		return nil, classify(url, status, fetchErr)
	}
}

func classify(url string, status int, err error) *bundle.FetchError {
	if status >= 400 {
		return &bundle.FetchError{Kind: bundle.FetchStatus, URL: url, StatusCode: status, Cause: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &bundle.FetchError{Kind: bundle.FetchTimeout, URL: url, Cause: err}
	}
	return &bundle.FetchError{Kind: bundle.FetchNetwork, URL: url, StatusCode: status, Cause: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
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
}
