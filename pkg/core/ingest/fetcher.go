package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"filing_rating/pkg/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds retries of transient upstream failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when no policy is supplied.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Fetcher performs rate-limited GETs against SEC endpoints with bounded,
// jittered exponential backoff. It is shared by every EDGAR request.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	policy    RetryPolicy
	logger    zerolog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// WithRateLimit sets the allowed requests per second.
func WithRateLimit(perSecond float64) FetcherOption {
	return func(f *Fetcher) {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) FetcherOption {
	return func(f *Fetcher) {
		if p.MaxAttempts < 1 {
			p.MaxAttempts = 1
		}
		f.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher. userAgent is mandatory for SEC fair access.
func NewFetcher(userAgent string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(8), 8),
		policy:    DefaultRetryPolicy,
		logger:    zerolog.Nop(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get downloads url, retrying transient failures. source labels the feed in errors.
func (f *Fetcher) Get(ctx context.Context, source, url, accept string) ([]byte, error) {
	var lastErr *models.UpstreamError

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		body, retryAfter, err := f.do(ctx, source, url, accept)
		if err == nil {
			return body, nil
		}

		var upErr *models.UpstreamError
		if !errors.As(err, &upErr) {
			return nil, err
		}
		upErr.Attempts = attempt
		lastErr = upErr

		if !upErr.Retryable() || ctx.Err() != nil || attempt == f.policy.MaxAttempts {
			break
		}

		delay := f.backoff(attempt)
		if retryAfter > 0 {
			delay = retryAfter
			if f.policy.MaxDelay > 0 && delay > f.policy.MaxDelay {
				delay = f.policy.MaxDelay
			}
		}

		f.logger.Warn().
			Err(upErr).
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Upstream request failed, backing off")

		if err := f.sleep(ctx, delay); err != nil {
			lastErr.Err = fmt.Errorf("context cancelled during backoff: %w", err)
			break
		}
	}

	return nil, lastErr
}

// GetJSON downloads url and decodes the body into dest. Malformed JSON is
// reported as an UpstreamError and never retried.
func (f *Fetcher) GetJSON(ctx context.Context, source, url string, dest interface{}) error {
	body, err := f.Get(ctx, source, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &models.UpstreamError{
			Source:   source,
			URL:      url,
			Attempts: 1,
			Err:      fmt.Errorf("malformed JSON response: %w", err),
		}
	}
	return nil
}

// do performs one attempt. Non-upstream errors (bad request construction,
// rate limiter cancellation) are returned unwrapped.
func (f *Fetcher) do(ctx context.Context, source, url, accept string) ([]byte, time.Duration, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter wait for %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	f.logger.Debug().Str("url", url).Msg("EDGAR request")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, &models.UpstreamError{Source: source, URL: url, Err: ctx.Err()}
		}
		return nil, 0, &models.UpstreamError{Source: source, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), &models.UpstreamError{
			Source:     source,
			URL:        url,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &models.UpstreamError{Source: source, URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, 0, nil
}

// backoff returns the jittered delay before attempt+1: base*2^(attempt-1),
// capped at MaxDelay, scaled by a random factor in [0.5, 1).
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := f.policy.BaseDelay << uint(attempt-1)
	if f.policy.MaxDelay > 0 && (d > f.policy.MaxDelay || d <= 0) {
		d = f.policy.MaxDelay
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
