package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"car-scraper/pkg/config"
	"car-scraper/pkg/utils"
)

// Fetcher issues requests with the shared headers, host pacing and per-host
// concurrency limits. Pages go through FetchWithRetry; image bytes use the
// single-attempt Fetch.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	limiter *RateLimiter       // Optional
	hosts   *HostSemaphorePool // Optional
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. limiter and hosts may be nil.
func NewFetcher(client *http.Client, cfg *config.AppConfig, limiter *RateLimiter, hosts *HostSemaphorePool, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		hosts:   hosts,
		log:     log,
	}
}

// NewRequest builds a GET request carrying the configured browser headers
func (f *Fetcher) NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utils.ErrRequestCreation, rawURL, err)
	}
	if f.cfg.DefaultUserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.DefaultUserAgent)
	}
	if f.cfg.AcceptHeader != "" {
		req.Header.Set("Accept", f.cfg.AcceptHeader)
	}
	if f.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	return req, nil
}

// Fetch performs exactly one attempt. On success the caller must close the body.
// Any non-2xx status is returned as an error with the body already closed.
// timeout (0 = none) starts once the host slot and pacing delay are through and
// covers the round trip plus the body read; it ends when the body is closed.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error) {
	host := req.URL.Host
	if err := f.acquireHost(ctx, host); err != nil {
		return nil, err
	}
	defer f.releaseHost(host)

	if err := f.pace(ctx, host); err != nil {
		return nil, err
	}

	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	resp, err := f.client.Do(req.WithContext(reqCtx))
	f.touch(host)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := statusError(resp); err != nil {
		drainAndClose(resp)
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request deadline together with the body
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// FetchWithRetry performs an HTTP request with exponential backoff and jitter
// for network errors, 5xx and 429. Other 4xx and non-2xx statuses are not retried;
// in that case the response is returned alongside the error and the caller must close it.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var currentResp *http.Response

	reqLog := f.log.WithField("url", req.URL.String())
	host := req.URL.Host

	if err := f.acquireHost(ctx, host); err != nil {
		return nil, err
	}
	defer f.releaseHost(host)

	maxRetries := f.cfg.MaxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		if err := f.pace(ctx, host); err != nil {
			return nil, err
		}
		currentResp, lastErr = f.client.Do(req.WithContext(ctx))
		f.touch(host)

		if lastErr != nil {
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				return nil, lastErr
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", lastErr)
			currentResp = nil
			continue
		}

		statusCode := currentResp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})
		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return currentResp, nil

		case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
			resLog.Warn("Retryable status")
			lastErr = statusError(currentResp)
			drainAndClose(currentResp)
			currentResp = nil
			continue

		default:
			resLog.Warn("Non-retryable status")
			return currentResp, statusError(currentResp)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}

// backoff is initial*2^(attempt-1) capped at max_retry_delay, with +/-10% jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.cfg.InitialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > f.cfg.MaxRetryDelay {
		delay = f.cfg.MaxRetryDelay
	}
	if span := int64(delay) / 5; span > 0 {
		delay += time.Duration(rand.Int63n(span)) - delay/10
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func (f *Fetcher) acquireHost(ctx context.Context, host string) error {
	if f.hosts == nil {
		return nil
	}
	return f.hosts.Acquire(ctx, host)
}

func (f *Fetcher) releaseHost(host string) {
	if f.hosts != nil {
		f.hosts.Release(host)
	}
}

func (f *Fetcher) pace(ctx context.Context, host string) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.ApplyDelay(ctx, host, f.cfg.DefaultDelayPerHost)
}

func (f *Fetcher) touch(host string) {
	if f.limiter != nil {
		f.limiter.UpdateLastRequestTime(host)
	}
}

// statusError maps a non-2xx response to the matching sentinel, or nil for 2xx
func statusError(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, code, resp.Status)
	case code >= 400:
		return fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	default:
		return fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, code, resp.Status)
	}
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
