package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	maxPageBytes = 4 << 20
	robotsTTL    = 6 * time.Hour
)

// PoliteClient fetches single posting pages for enrichment. It honours
// robots.txt, paces each host and retries 429/5xx answers.
type PoliteClient struct {
	client      *http.Client
	ua          string
	maxAttempts int
	hosts       *hostLimiter

	mu     sync.Mutex
	robots map[string]robotsEntry
	now    func() time.Time
}

type robotsEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

func NewPoliteClient(userAgent string, timeout time.Duration) *PoliteClient {
	if userAgent == "" {
		userAgent = BrowserUserAgent
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PoliteClient{
		client:      &http.Client{Timeout: timeout},
		ua:          userAgent,
		maxAttempts: defaultMaxAttempts,
		hosts:       newHostLimiter(time.Second, 2),
		robots:      map[string]robotsEntry{},
		now:         time.Now,
	}
}

// NewRequest builds a GET request, defaulting the scheme to https.
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// FetchPage GETs rawURL and returns at most 4MB of body.
func (p *PoliteClient) FetchPage(ctx context.Context, rawURL string) (string, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	target := u.String()
	if !p.allowed(ctx, u) {
		return "", &FetchError{URL: target, Err: ErrBlockedByRobots}
	}

	var last *FetchError
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := p.hosts.wait(ctx, u.Hostname()); err != nil {
			return "", &FetchError{URL: target, Err: err}
		}
		body, retryAfter, ferr := p.get(ctx, target)
		if ferr == nil {
			return body, nil
		}
		last = ferr
		if ctx.Err() != nil || !ferr.Retryable() {
			return "", ferr
		}
		p.hosts.backoff(u.Hostname(), attempt, retryAfter)
	}
	return "", last
}

func (p *PoliteClient) get(ctx context.Context, target string) (string, time.Duration, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, &FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", p.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return "", parseRetryAfter(resp.Header.Get("Retry-After"), p.now()),
			&FetchError{URL: target, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", 0, &FetchError{URL: target, Status: resp.StatusCode, Err: err}
	}
	return string(body), 0, nil
}

// allowed fails open: an unreachable robots.txt does not block the page.
func (p *PoliteClient) allowed(ctx context.Context, u *url.URL) bool {
	data, err := p.robotsFor(ctx, u)
	if err != nil || data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, p.ua)
}

func (p *PoliteClient) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host
	p.mu.Lock()
	entry, ok := p.robots[key]
	p.mu.Unlock()
	if ok && p.now().Sub(entry.fetched) < robotsTTL {
		return entry.data, nil
	}

	if err := p.hosts.wait(ctx, u.Hostname()); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.ua)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, errors.Join(errors.New("parse robots.txt"), err)
	}

	p.mu.Lock()
	p.robots[key] = robotsEntry{data: data, fetched: p.now()}
	p.mu.Unlock()
	return data, nil
}
