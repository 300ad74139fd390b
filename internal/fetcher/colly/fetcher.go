// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/seedindex/internal/fetcher"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 * 1024 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements fetcher.Fetcher using the Colly collector. A fresh
// collector is built per call so no visit history is shared between URLs.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single HTTP GET and classifies the result.
func (f *Fetcher) Fetch(ctx context.Context, url string) fetcher.Outcome {
	var (
		resp     *colly.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, &resp, &fetchErr)

	var out fetcher.Outcome
	visitErr := f.runCollector(ctx, collector, url)
	if errors.Is(visitErr, context.Canceled) || errors.Is(visitErr, context.DeadlineExceeded) {
		// the collector goroutine may still be running; its hooks are not read
		out = classify(url, nil, nil, visitErr)
	} else {
		out = classify(url, resp, fetchErr, visitErr)
	}
	if out.Kind == fetcher.Success && len(out.Body) >= f.cfg.MaxBodyBytes {
		out.Truncated = true
	}
	out.Duration = time.Since(start)
	return out
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(f.cfg.MaxBodyBytes),
		colly.StdlibContext(ctx),
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, resp **colly.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*resp = r
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*resp = r
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// classify maps what the collector observed onto an outcome: any response
// below 400 is a success, any response at or above 400 an HTTP error, and
// no response at all a network failure.
func classify(url string, resp *colly.Response, fetchErr, visitErr error) fetcher.Outcome {
	out := fetcher.Outcome{URL: url}
	if resp != nil && resp.StatusCode > 0 {
		out.StatusCode = resp.StatusCode
		if resp.StatusCode < http.StatusBadRequest {
			out.Kind = fetcher.Success
			out.Body = append([]byte(nil), resp.Body...)
			return out
		}
		out.Kind = fetcher.HTTPError
		out.Message = httpErrorMessage(resp.StatusCode, finalURL(url, resp))
		return out
	}
	out.Kind = fetcher.NetworkFailure
	switch {
	case fetchErr != nil:
		out.Message = fetchErr.Error()
	case visitErr != nil:
		out.Message = visitErr.Error()
	default:
		out.Message = "no response received"
	}
	return out
}

func finalURL(url string, resp *colly.Response) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return url
}

func httpErrorMessage(code int, url string) string {
	kind := "Client Error"
	if code >= http.StatusInternalServerError {
		kind = "Server Error"
	}
	return fmt.Sprintf("%d %s: %s for url: %s", code, kind, http.StatusText(code), url)
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
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
