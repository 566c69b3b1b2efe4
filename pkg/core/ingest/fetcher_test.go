package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"filing_rating/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFetcher returns a fetcher with no rate limiting and instant backoff.
// Requested delays are recorded in the returned slice pointer.
func newTestFetcher(attempts int) (*Fetcher, *[]time.Duration) {
	delays := &[]time.Duration{}
	f := NewFetcher("FilingRating test test@example.com",
		WithRateLimit(1000),
		WithRetryPolicy(RetryPolicy{MaxAttempts: attempts, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}),
	)
	f.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return f, delays
}

func TestFetcher_SendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(1)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, f.GetJSON(context.Background(), "test", srv.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "FilingRating test test@example.com", gotUA)
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	body, err := f.Get(context.Background(), "test", srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, *delays, 2)
}

func TestFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(3)
	_, err := f.Get(context.Background(), "companyfacts", srv.URL, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))

	var upErr *models.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Equal(t, 3, upErr.Attempts)
	assert.Equal(t, "companyfacts", upErr.Source)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetcher_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, delays := newTestFetcher(3)
	_, err := f.Get(context.Background(), "test", srv.URL, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *delays)

	var upErr *models.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.False(t, upErr.Retryable())
}

func TestFetcher_HonoursRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, delays := newTestFetcher(2)
	f.policy.MaxDelay = 5 * time.Second
	_, err := f.Get(context.Background(), "test", srv.URL, "")
	require.NoError(t, err)
	require.Len(t, *delays, 1)
	assert.Equal(t, time.Second, (*delays)[0])
}

func TestFetcher_MalformedJSONIsUpstreamError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(3)
	var out map[string]interface{}
	err := f.GetJSON(context.Background(), "submissions", srv.URL, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetcher_BackoffIsBoundedAndJittered(t *testing.T) {
	f := NewFetcher("ua", WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}))

	for attempt := 1; attempt <= 5; attempt++ {
		d := f.backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
	d1 := f.backoff(1)
	assert.GreaterOrEqual(t, d1, 50*time.Millisecond)
	assert.Less(t, d1, 100*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
