package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "secret", r.Header.Get("X-Key"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name":"remotive"}`))
		case "/bad":
			w.Write([]byte(`{not json`))
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	var out struct {
		Name string `json:"name"`
	}

	hdr := http.Header{}
	hdr.Set("X-Key", "secret")
	require.NoError(t, GetJSON(context.Background(), client, srv.URL+"/ok", hdr, &out))
	assert.Equal(t, "remotive", out.Name)

	err := GetJSON(context.Background(), client, srv.URL+"/missing", nil, &out)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusGone, fe.Status)

	err = GetJSON(context.Background(), client, srv.URL+"/bad", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")
}

func TestCollyFetcherFetchHTML(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/down" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Vagas</h1></body></html>`))
	}))
	defer srv.Close()

	f := NewCollyFetcher("").WithTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, f.Timeout())

	body, status, err := f.FetchHTML(context.Background(), srv.URL+"/vagas")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<h1>Vagas</h1>")
	assert.Equal(t, BrowserUserAgent, gotUA)

	_, status, err = f.FetchHTML(context.Background(), srv.URL+"/down")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestPoliteClientRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/job/1":
			w.Write([]byte("<html>contact: hr@example.com</html>"))
		default:
			w.Write([]byte("secret"))
		}
	}))
	defer srv.Close()

	p := NewPoliteClient("jobradar-test/1.0", 2*time.Second)

	body, err := p.FetchPage(context.Background(), srv.URL+"/job/1")
	require.NoError(t, err)
	assert.Contains(t, body, "hr@example.com")

	_, err = p.FetchPage(context.Background(), srv.URL+"/private/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robots.txt")
	assert.ErrorIs(t, err, ErrBlockedByRobots)
}

func TestPoliteClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	p := NewPoliteClient("", 2*time.Second)
	body, err := p.FetchPage(context.Background(), srv.URL+"/job/2")
	require.NoError(t, err)
	assert.Contains(t, body, "ok")
	assert.Equal(t, int32(2), calls.Load())
}

func TestCollyFetcherStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	_, status, err := NewCollyFetcher("").FetchHTML(context.Background(), srv.URL+"/list")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollyFetcherHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := NewCollyFetcher("").WithTimeout(10*time.Second).WithAttempts(1).FetchHTML(ctx, srv.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, requestTimeout(context.Background(), 10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := requestTimeout(ctx, 10*time.Second)
	assert.LessOrEqual(t, got, time.Second)
	assert.Greater(t, got, time.Duration(0))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("3600", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestHostLimiterBackoff(t *testing.T) {
	h := newHostLimiter(time.Millisecond, 10)
	h.backoff("www.Vagas.com.br", 0, 0)

	st := h.state("vagas.com.br")
	st.mu.Lock()
	next := st.nextAllowed
	st.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(baseBackoff), next, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.wait(ctx, "vagas.com.br"), context.DeadlineExceeded)
}

func TestNormalizeURL(t *testing.T) {
	u, err := normalizeURL("example.com/jobs?id=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/jobs?id=1", u.String())

	_, err = normalizeURL("  ")
	assert.ErrorIs(t, err, errEmptyURL)
}
