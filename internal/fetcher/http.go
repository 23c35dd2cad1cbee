package fetcher

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catfim/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase  time.Duration
	RateLimiters map[string]*rate.Limiter
	// Adaptive holds per-host limiters that slow down on 429 responses.
	Adaptive map[string]*AdaptiveLimiter
	// InsecureSkipVerify disables TLS verification. The federal services
	// have shipped broken certificate chains before.
	InsecureSkipVerify bool
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	fallback *rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "catfim/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		fallback: rate.NewLimiter(20, 20),
	}
}

func (f *HTTPFetcher) wait(ctx context.Context, host string) error {
	if a, ok := f.opts.Adaptive[host]; ok {
		return a.Wait(ctx)
	}
	if lim, ok := f.opts.RateLimiters[host]; ok {
		return lim.Wait(ctx)
	}
	return f.fallback.Wait(ctx)
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	target := u.String()
	adaptive := f.opts.Adaptive[u.Host]

	retry := resilience.Backoff(f.opts.MaxRetries, f.opts.BackoffBase, 30*time.Second)
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("http request failed, retrying",
			zap.String("url", target), zap.Int("attempt", attempt), zap.Error(err))
	}

	// last keeps a transient-status response so it can be returned once
	// the retries run out.
	var last *Response
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		last = nil
		if err := f.wait(ctx, u.Host); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}
		resp, err := f.do(ctx, target)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
			adaptive.OnRateLimit()
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			last = resp
			return nil, resilience.NewTransientError(eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
		}
		if adaptive != nil && resp.OK() {
			adaptive.OnSuccess()
		}
		return resp, nil
	})
	switch {
	case err == nil:
		return resp, nil
	case last != nil:
		return last, nil
	}
	return nil, eris.Wrapf(err, "fetch: get %s", target)
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "read body from %s", rawURL)
	}
	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
