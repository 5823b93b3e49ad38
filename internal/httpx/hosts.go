package httpx

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts = 3
	baseBackoff        = 500 * time.Millisecond
	maxRetryAfter      = 30 * time.Second
)

// hostLimiter paces requests per host and holds a host back after a 429
// or 5xx answer.
type hostLimiter struct {
	mu    sync.Mutex
	every time.Duration
	burst int
	hosts map[string]*hostState
}

type hostState struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	nextAllowed time.Time
}

func newHostLimiter(every time.Duration, burst int) *hostLimiter {
	return &hostLimiter{every: every, burst: burst, hosts: map[string]*hostState{}}
}

func (h *hostLimiter) state(host string) *hostState {
	host = normalizeHost(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.hosts[host]
	if !ok {
		st = &hostState{limiter: rate.NewLimiter(rate.Every(h.every), h.burst)}
		h.hosts[host] = st
	}
	return st
}

// set overrides the pace for one host.
func (h *hostLimiter) set(host string, every time.Duration, burst int) {
	st := h.state(host)
	st.limiter.SetLimit(rate.Every(every))
	st.limiter.SetBurst(burst)
}

// wait blocks until host may be contacted again.
func (h *hostLimiter) wait(ctx context.Context, host string) error {
	st := h.state(host)
	for {
		st.mu.Lock()
		delay := time.Until(st.nextAllowed)
		st.mu.Unlock()
		if delay <= 0 {
			break
		}
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
	return st.limiter.Wait(ctx)
}

// backoff pushes the next request to host out by retryAfter, or by an
// exponential delay for attempt when the server gave no hint.
func (h *hostLimiter) backoff(host string, attempt int, retryAfter time.Duration) {
	delay := retryAfter
	if delay <= 0 {
		delay = baseBackoff << max(attempt, 0)
	}
	st := h.state(host)
	st.mu.Lock()
	if next := time.Now().Add(delay); next.After(st.nextAllowed) {
		st.nextAllowed = next
	}
	st.mu.Unlock()
}

// parseRetryAfter reads a delay-seconds or HTTP-date Retry-After value.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d < 0 {
		return 0
	}
	return min(d, maxRetryAfter)
}

func normalizeURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, &FetchError{Err: errEmptyURL}
	}
	rawURL = strings.TrimSpace(rawURL)
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + strings.TrimPrefix(rawURL, "//")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return u, nil
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
