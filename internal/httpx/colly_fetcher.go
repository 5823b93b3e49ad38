package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// BrowserUserAgent is sent to scraped job boards, several of which serve
// reduced markup to unknown clients.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// CollyFetcher downloads job board listing pages through Colly, one
// collector per request, with per-host pacing and retries on 429/5xx.
type CollyFetcher struct {
	userAgent   string
	timeout     time.Duration
	maxAttempts int
	hosts       *hostLimiter
	logger      *slog.Logger
}

func NewCollyFetcher(userAgent string) *CollyFetcher {
	if userAgent == "" {
		userAgent = BrowserUserAgent
	}
	return &CollyFetcher{
		userAgent:   userAgent,
		timeout:     30 * time.Second,
		maxAttempts: defaultMaxAttempts,
		hosts:       newHostLimiter(time.Second, 2),
		logger:      slog.With("component", "board_fetcher"),
	}
}

// WithTimeout sets the per-request timeout. Scraped boards are slow, so
// callers typically pass 20-60s.
func (f *CollyFetcher) WithTimeout(d time.Duration) *CollyFetcher {
	if d > 0 {
		f.timeout = d
	}
	return f
}

func (f *CollyFetcher) WithAttempts(n int) *CollyFetcher {
	if n > 0 {
		f.maxAttempts = n
	}
	return f
}

func (f *CollyFetcher) Timeout() time.Duration {
	return f.timeout
}

// SetHostLimit paces one board, e.g. one request every 3s for a host that
// rate limits aggressively.
func (f *CollyFetcher) SetHostLimit(host string, every time.Duration, burst int) {
	if host == "" || every <= 0 || burst <= 0 {
		return
	}
	f.hosts.set(host, every, burst)
}

// FetchHTML returns the page body together with the final status.
func (f *CollyFetcher) FetchHTML(ctx context.Context, rawURL string) (string, int, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return "", 0, err
	}
	target, host := u.String(), u.Hostname()

	var last *FetchError
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if err := f.hosts.wait(ctx, host); err != nil {
			return "", 0, &FetchError{URL: target, Err: err}
		}
		page, err := f.fetchOnce(ctx, target)
		if err == nil {
			return page.body, page.status, nil
		}
		last = &FetchError{URL: target, Status: page.status, Err: err}
		if ctx.Err() != nil || !retryableStatus(page.status) {
			return "", page.status, last
		}
		f.hosts.backoff(host, attempt, page.retryAfter)
		f.logger.Debug("retrying board page", "url", target, "status", page.status, "attempt", attempt+1)
	}
	return "", last.Status, last
}

type boardPage struct {
	body       string
	status     int
	retryAfter time.Duration
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, target string) (boardPage, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(f.userAgent),
		colly.MaxBodySize(maxPageBytes),
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = false
	// the robots.txt lookup ignores the collector context, only the client timeout bounds it
	c.SetRequestTimeout(requestTimeout(ctx, f.timeout))

	var page boardPage
	var reqErr error
	record := func(r *colly.Response) {
		page.status = r.StatusCode
		if r.Headers != nil {
			page.retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"), time.Now())
		}
	}
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		record(r)
		page.body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			record(r)
		}
		reqErr = err
	})

	hdr := http.Header{}
	hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	hdr.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	if err := c.Request(http.MethodGet, target, nil, colly.NewContext(), hdr); err != nil {
		if ctx.Err() != nil {
			return page, ctx.Err()
		}
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return page, ErrBlockedByRobots
		}
		return page, err
	}
	if ctx.Err() != nil {
		return page, ctx.Err()
	}
	if reqErr != nil {
		return page, reqErr
	}
	if page.status >= 400 {
		return page, fmt.Errorf("status %d", page.status)
	}
	if page.status == 0 {
		page.status = http.StatusOK
	}
	return page, nil
}

// requestTimeout shortens d to whatever is left of ctx's deadline.
func requestTimeout(ctx context.Context, d time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return d
	}
	return max(min(d, time.Until(dl)), time.Millisecond)
}
