package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(retries int) Options {
	return Options{Timeout: time.Second, MaxRetries: retries, RetryBaseDelay: time.Millisecond}
}

type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newServer(t *testing.T, handler http.HandlerFunc) *countingServer {
	t.Helper()
	s := &countingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func statusServer(t *testing.T, status int) *countingServer {
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

type reply struct {
	Message string `json:"message"`
}

func TestSendSuccess(t *testing.T) {
	var gotKey, gotType, gotMethod string
	var gotBody map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(APIKeyHeader)
		gotType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	c := New(srv.Client(), testOptions(3), quietLogger())
	var out reply
	found, err := c.Send(context.Background(), []string{srv.URL}, "public_key", map[string]string{"a": "b"}, &out)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ok", out.Message)
	assert.Equal(t, "public_key", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, map[string]any{"a": "b"}, gotBody)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestSendEmptyBodyIsAbsentNotError(t *testing.T) {
	srv := statusServer(t, http.StatusOK)

	c := New(srv.Client(), testOptions(3), quietLogger())
	var out reply
	found, err := c.Send(context.Background(), []string{srv.URL}, "k", struct{}{}, &out)

	require.NoError(t, err)
	assert.False(t, found)
	assert.EqualValues(t, 1, srv.hits.Load(), "empty 2xx must not be retried")
}

func TestSendNilBodyOmitsContentType(t *testing.T) {
	var gotType string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	})

	c := New(srv.Client(), testOptions(1), quietLogger())
	_, err := c.Send(context.Background(), []string{srv.URL}, "k", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, gotType)
}

func TestSendNotFoundStopsImmediately(t *testing.T) {
	first := statusServer(t, http.StatusNotFound)
	second := statusServer(t, http.StatusOK)

	c := New(http.DefaultClient, testOptions(3), quietLogger())
	_, err := c.Send(context.Background(), []string{first.URL, second.URL}, "k", nil, nil)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, first.hits.Load())
	assert.EqualValues(t, 0, second.hits.Load(), "non-retryable error must not try later urls")
}

func TestSendFallsThroughToNextURL(t *testing.T) {
	failing := statusServer(t, http.StatusInternalServerError)
	ok := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"second"}`))
	})

	c := New(http.DefaultClient, testOptions(3), quietLogger())
	var out reply
	found, err := c.Send(context.Background(), []string{failing.URL, ok.URL}, "k", nil, &out)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", out.Message)
	assert.EqualValues(t, 1, failing.hits.Load())
	assert.EqualValues(t, 1, ok.hits.Load())
}

func TestSendExhaustsAllAttemptsAndURLs(t *testing.T) {
	a := statusServer(t, http.StatusInternalServerError)
	b := statusServer(t, http.StatusBadGateway)

	c := New(http.DefaultClient, testOptions(3), quietLogger())
	_, err := c.Send(context.Background(), []string{a.URL, b.URL}, "k", nil, nil)

	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr, "last observed error is surfaced")
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.ErrorIs(t, err, ErrUnknownServerError)
	assert.EqualValues(t, 3, a.hits.Load())
	assert.EqualValues(t, 3, b.hits.Load())
}

func TestSendSucceedsOnLaterAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":"third"}`))
	})

	c := New(srv.Client(), testOptions(3), quietLogger())
	var out reply
	found, err := c.Send(context.Background(), []string{srv.URL}, "k", nil, &out)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "third", out.Message)
	assert.EqualValues(t, 3, srv.hits.Load())
}

func TestSendDecodeFailureIsNotRetried(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	c := New(srv.Client(), testOptions(3), quietLogger())
	var out reply
	_, err := c.Send(context.Background(), []string{srv.URL, srv.URL}, "k", nil, &out)

	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestSendConnectionRefusedIsRetriedOnNextURL(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ok := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := New(http.DefaultClient, testOptions(2), quietLogger())
	found, err := c.Send(context.Background(), []string{deadURL, ok.URL}, "k", nil, nil)

	require.NoError(t, err)
	assert.False(t, found)
	assert.EqualValues(t, 1, ok.hits.Load())
}

func TestSendTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"message":"late"}`))
	})

	opts := testOptions(2)
	opts.Timeout = 50 * time.Millisecond
	c := New(srv.Client(), opts, quietLogger())

	var out reply
	found, err := c.Send(context.Background(), []string{srv.URL}, "k", nil, &out)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "late", out.Message)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestSendCanceledContextStops(t *testing.T) {
	srv := statusServer(t, http.StatusInternalServerError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.Client(), testOptions(3), quietLogger())
	_, err := c.Send(ctx, []string{srv.URL}, "k", nil, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, srv.hits.Load())
}

func TestSendWithoutURLs(t *testing.T) {
	c := New(nil, testOptions(3), quietLogger())
	_, err := c.Send(context.Background(), nil, "k", nil, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, -1, statusErr.StatusCode)
}

func TestSendBadURL(t *testing.T) {
	c := New(nil, testOptions(3), quietLogger())
	_, err := c.Send(context.Background(), []string{"http://bad host\x7f/"}, "k", nil, nil)
	assert.ErrorIs(t, err, ErrBadURL)
}

func TestSendEncodeFailure(t *testing.T) {
	c := New(nil, testOptions(3), quietLogger())
	_, err := c.Send(context.Background(), []string{"http://localhost"}, "k", map[string]any{"c": make(chan int)}, nil)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestMaxRetriesBelowOneMeansSingleAttempt(t *testing.T) {
	srv := statusServer(t, http.StatusInternalServerError)

	c := New(srv.Client(), testOptions(0), quietLogger())
	_, err := c.Send(context.Background(), []string{srv.URL}, "k", nil, nil)

	assert.ErrorIs(t, err, ErrInternalServerError)
	assert.EqualValues(t, 1, srv.hits.Load())
}

func TestPowerBackOff(t *testing.T) {
	t.Run("grows with attempt", func(t *testing.T) {
		b := NewPowerBackOff(2 * time.Second)
		assert.Equal(t, 2*time.Second, b.NextBackOff())
		assert.Equal(t, 4*time.Second, b.NextBackOff())
		assert.Equal(t, 8*time.Second, b.NextBackOff())
	})

	t.Run("never decreases for sub second base", func(t *testing.T) {
		b := NewPowerBackOff(500 * time.Millisecond)
		prev := time.Duration(0)
		for i := 0; i < 5; i++ {
			d := b.NextBackOff()
			assert.GreaterOrEqual(t, d, prev)
			prev = d
		}
		assert.Equal(t, 500*time.Millisecond, prev)
	})

	t.Run("capped", func(t *testing.T) {
		b := NewPowerBackOff(10 * time.Second)
		for i := 0; i < 5; i++ {
			b.NextBackOff()
		}
		assert.Equal(t, MaxRetryDelay, b.NextBackOff())
	})

	t.Run("reset", func(t *testing.T) {
		b := NewPowerBackOff(3 * time.Second)
		b.NextBackOff()
		b.NextBackOff()
		b.Reset()
		assert.Equal(t, 3*time.Second, b.NextBackOff())
	})

	t.Run("zero base", func(t *testing.T) {
		b := NewPowerBackOff(0)
		assert.Equal(t, time.Duration(0), b.NextBackOff())
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"invalid response", fmt.Errorf("%w: x", ErrInvalidResponse), false},
		{"bad url", ErrBadURL, false},
		{"internal server error", ErrInternalServerError, true},
		{"unknown status", &StatusError{StatusCode: 418}, true},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{"refused", &net.OpError{Op: "read", Err: syscall.ECONNREFUSED}, true},
		{"reset", syscall.ECONNRESET, true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("no route")}, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"net timeout", timeoutErr{}, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
