package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultCacheTTL       = 5 * time.Minute
	maxBackoff            = 30 * time.Second
)

// Fetcher is the shared HTTP layer for all adapters: request timeout, bounded
// retries with exponential backoff on transient failures, a per-host rate
// limiter and a TTL response cache so serve-mode reruns do not hammer
// upstreams. One Fetcher is created per process.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	cache      *gocache.Cache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: defaultRequestTimeout},
		userAgent:  userAgent,
		maxRetries: defaultMaxRetries,
		cache:      gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// SetHostLimit installs a rate limiter for one host. Adapters call this at
// construction to respect per-source rate ceilings (e.g. the GitHub search
// budget, which depends on whether a token is configured).
func (f *Fetcher) SetHostLimit(host string, limit rate.Limit, burst int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limiters[host] = rate.NewLimiter(limit, burst)
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 3)
		f.limiters[host] = limiter
	}
	return limiter
}

// Get performs a GET request with retries and caches the response body for
// the cache TTL, keyed by URL.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	if cached, ok := f.cache.Get(rawURL); ok {
		return cached.([]byte), nil
	}

	body, err := f.do(ctx, http.MethodGet, rawURL, headers, nil)
	if err != nil {
		return nil, err
	}

	f.cache.Set(rawURL, body, gocache.DefaultExpiration)
	return body, nil
}

// GetJSON performs a cached GET request and decodes the response into out.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	body, err := f.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

// PostJSON performs an uncached POST request with a JSON body and decodes the
// response into out.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, reqBody any, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	body, err := f.do(ctx, http.MethodPost, rawURL, map[string]string{"Content-Type": "application/json"}, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, headers map[string]string, payload []byte) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	limiter := f.limiter(parsed.Host)

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if delay > maxBackoff {
				delay = maxBackoff
			}
			slog.Debug("Retrying request", "url", rawURL, "attempt", attempt, "delay", delay.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := f.doOnce(ctx, method, rawURL, headers, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", f.maxRetries, lastErr)
}

func (f *Fetcher) doOnce(ctx context.Context, method, rawURL string, headers map[string]string, payload []byte) ([]byte, bool, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || isRateLimited(resp):
		if wait := retryAfter(resp); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(wait):
			}
		}
		return nil, true, fmt.Errorf("rate limited: HTTP %d from %s", resp.StatusCode, rawURL)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	default:
		return nil, false, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
}

// isRateLimited recognizes GitHub reporting rate-limit exhaustion as a 403
// with a zeroed remaining-quota header.
func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	wait := time.Duration(secs) * time.Second
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}
