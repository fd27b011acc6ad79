package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		NumDownloaders:    4,
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		DefaultUserAgent:  "crawl-engine-test",
	}
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// statusServer answers with statusCodes in sequence, repeating the last one.
func statusServer(t *testing.T, statusCodes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attempts.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attempts
}

func fetchOnce(t *testing.T, f *Fetcher, ctx context.Context, target string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	resp, err := f.FetchWithRetry(ctx, req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestFetchWithRetry_StatusHandling(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		retries      int
		wantStatus   int // 0 when no response is expected
		wantErr      error
		wantAttempts int32
	}{
		{"200 OK", []int{200}, 3, 200, nil, 1},
		{"204 No Content", []int{204}, 3, 204, nil, 1},
		{"5xx then success", []int{500, 500, 200}, 3, 200, nil, 3},
		{"429 then success", []int{429, 200}, 3, 200, nil, 2},
		{"mixed retryable then success", []int{500, 429, 502, 200}, 3, 200, nil, 4},
		{"5xx exhausted", []int{500}, 3, 0, utils.ErrServerHTTPError, 4},
		{"429 exhausted", []int{429}, 3, 0, utils.ErrRetryFailed, 4},
		{"zero retries", []int{500}, 0, 0, utils.ErrRetryFailed, 1},
		{"404 not retried", []int{404}, 3, 404, utils.ErrClientHTTPError, 1},
		{"403 not retried", []int{403}, 3, 403, utils.ErrClientHTTPError, 1},
		{"3xx without location", []int{304}, 3, 304, utils.ErrOtherHTTPError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := statusServer(t, tt.statuses...)
			f := NewFetcher(testClient(), testConfig(tt.retries), testLogger())

			resp, err := fetchOnce(t, f, context.Background(), server.URL)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantStatus == 0 {
				assert.Nil(t, resp)
			} else {
				require.NotNil(t, resp)
				assert.Equal(t, tt.wantStatus, resp.StatusCode)
			}
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestFetchWithRetry_ExhaustedWrapsRetryFailed(t *testing.T) {
	server, _ := statusServer(t, 503)
	f := NewFetcher(testClient(), testConfig(1), testLogger())

	_, err := fetchOnce(t, f, context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
	assert.Equal(t, "RetryFailed_HTTPServer", utils.CategorizeError(err))
}

func TestFetchWithRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	server, attempts := statusServer(t, 200)
	f := NewFetcher(testClient(), testConfig(3), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := fetchOnce(t, f, ctx, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetchWithRetry_ContextTimeoutDuringBackoff(t *testing.T) {
	server, attempts := statusServer(t, 500)
	cfg := testConfig(3)
	cfg.InitialRetryDelay = 10 * time.Second
	cfg.MaxRetryDelay = 10 * time.Second
	f := NewFetcher(testClient(), cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp, err := fetchOnce(t, f, ctx, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, utils.ErrServerHTTPError)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchWithRetry_ContextTimeoutDuringRequest(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)

	f := NewFetcher(testClient(), testConfig(3), testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := fetchOnce(t, f, ctx, slow.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchWithRetry_NetworkErrorRetried(t *testing.T) {
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	f := NewFetcher(testClient(), testConfig(3), testLogger())
	resp, err := fetchOnce(t, f, context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetchWithRetry_GlobalConcurrencyCap(t *testing.T) {
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(0)
	cfg.MaxConcurrentRequests = 2
	f := NewFetcher(testClient(), cfg, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := f.FetchWithRetry(context.Background(), req)
			if err == nil {
				drainAndClose(resp)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}
