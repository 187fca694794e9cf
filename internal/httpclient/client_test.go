package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(opts ...Option) *Client {
	base := []Option{
		WithTimeout(2 * time.Second),
		WithBackoff(time.Millisecond),
	}
	return New(append(base, opts...)...)
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	c := newTestClient(WithUserAgent("test-agent"))
	body, err := c.GetJSON(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": []}`, string(body))
}

func TestGetJSON_AttemptCount(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("attempt " + string(rune('0'+n))))
		}))

		c := newTestClient(WithMaxRetries(retries))
		_, err := c.GetJSON(context.Background(), srv.URL)
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, int32(retries+1), attempts.Load(), "retries=%d", retries)

		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, retries+1, fe.Attempts)
		assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode())
		// The final attempt's error is surfaced, not an aggregate.
		assert.Contains(t, err.Error(), "attempt "+string(rune('0'+retries+1)))
	}
}

func TestGetJSON_SuccessAfterRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(3))
	body, err := c.GetJSON(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGetJSON_BodySnippetTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(0))
	_, err := c.GetJSON(context.Background(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Len(t, se.Body, 300)
	assert.True(t, strings.HasPrefix(err.Error(), "HTTP 400 Bad Request :: xxx"))
}

func TestGetJSON_TimeoutIsFailedAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(WithTimeout(50*time.Millisecond), WithMaxRetries(1))
	start := time.Now()
	_, err := c.GetJSON(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Less(t, time.Since(start), 2*time.Second)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 0, fe.StatusCode())
}

func TestGetJSON_InvalidJSON(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(2))
	_, err := c.GetJSON(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGetJSON_BackoffTiming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// base 20ms, 2 retries: sleeps 20ms + 40ms, none after the last attempt.
	c := New(WithTimeout(time.Second), WithBackoff(20*time.Millisecond), WithMaxRetries(2))
	start := time.Now()
	_, err := c.GetJSON(context.Background(), srv.URL)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestGetJSON_ContextCancelStopsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(WithTimeout(time.Second), WithBackoff(time.Hour), WithMaxRetries(5))

	done := make(chan error, 1)
	go func() {
		_, err := c.GetJSON(ctx, srv.URL)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("GetJSON did not return after cancellation")
	}
}

func TestBackoff(t *testing.T) {
	base := 300 * time.Millisecond
	assert.Equal(t, 300*time.Millisecond, Backoff(base, 0))
	assert.Equal(t, 600*time.Millisecond, Backoff(base, 1))
	assert.Equal(t, 1200*time.Millisecond, Backoff(base, 2))
}

func TestWithRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(WithRateLimit(20))
	require.NotNil(t, c.limiter)

	start := time.Now()
	for range 3 {
		_, err := c.GetJSON(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	// Burst of 1 at 20 rps: the 2nd and 3rd requests wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	assert.Nil(t, New(WithRateLimit(0)).limiter)
}

func TestNew_NegativeRetriesClamped(t *testing.T) {
	c := New(WithMaxRetries(-2))
	assert.Equal(t, 0, c.maxRetries)
}
