package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
)

// RemoteOK API returns a JSON array; the first element is metadata.
type remoteOKJob struct {
	ID          json.Number `json:"id"`
	Slug        string      `json:"slug"`
	Company     string      `json:"company"`
	Position    string      `json:"position"`
	URL         string      `json:"url"`
	Tags        []string    `json:"tags"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	SalaryMin   int         `json:"salary_min"`
	SalaryMax   int         `json:"salary_max"`
}

type RemoteOKScraper struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

func NewRemoteOKScraper(client *http.Client) *RemoteOKScraper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteOKScraper{
		client:  client,
		baseURL: "https://remoteok.com/api",
		timeout: 10 * time.Second,
	}
}

func (r *RemoteOKScraper) WithBaseURL(u string) *RemoteOKScraper {
	r.baseURL = u
	return r
}

func (r *RemoteOKScraper) Name() string           { return "remoteok" }
func (r *RemoteOKScraper) Timeout() time.Duration { return r.timeout }

func (r *RemoteOKScraper) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	if !req.WantsCountry(model.CountryRemote) {
		return nil, nil
	}

	target := r.baseURL
	if tag := remoteOKTag(req.Keyword); tag != "" {
		target += "?tag=" + tag
	}

	var data []remoteOKJob
	if err := httpx.GetJSON(ctx, r.client, target, nil, &data); err != nil {
		return nil, fmt.Errorf("%w: remoteok: %w", ErrSourceUnavailable, err)
	}

	var jobs []model.JobPosting
	for _, j := range data {
		// Skip metadata element
		if j.Slug == "" || j.URL == "" {
			continue
		}
		if !matchesKeyword(req.Keyword, j.Position, j.Tags) {
			continue
		}
		jobs = append(jobs, model.JobPosting{
			ID:          externalID(r.Name(), j.ID.String()),
			URL:         j.URL,
			Title:       j.Position,
			Description: j.Description,
			Company:     j.Company,
			Location:    firstNonEmpty(j.Location, "Remote"),
			Salary:      salaryRange(j.SalaryMin, j.SalaryMax, "USD"),
			Tags:        j.Tags,
			PostedAt:    timePtr(parseRemoteOKDate(j.Date)),
		})
	}
	return finalize(jobs, r.Name(), model.CountryRemote, SourceLimit(req)), nil
}

func remoteOKTag(keyword string) string {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return ""
	}
	if keyword == "go" {
		return "golang"
	}
	return strings.ReplaceAll(keyword, " ", "-")
}

// matchesKeyword keeps a posting when the keyword is empty, appears in the
// title, or equals one of the tags.
func matchesKeyword(keyword, title string, tags []string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return true
	}
	if strings.Contains(strings.ToLower(title), keyword) {
		return true
	}
	return hasTag(tags, keyword) || (keyword == "go" && hasTag(tags, "golang"))
}

func hasTag(tags []string, want string) bool {
	wantLower := strings.ToLower(want)
	for _, t := range tags {
		if strings.ToLower(t) == wantLower {
			return true
		}
	}
	return false
}

func parseRemoteOKDate(val string) time.Time {
	if val == "" {
		return time.Time{}
	}
	// Example: "2023-12-20T04:02:19+00:00"
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}
	}
	return t
}

func salaryRange(lo, hi int, currency string) string {
	switch {
	case lo > 0 && hi > lo:
		return fmt.Sprintf("%s %d - %d", currency, lo, hi)
	case lo > 0:
		return fmt.Sprintf("%s %d", currency, lo)
	case hi > 0:
		return fmt.Sprintf("%s %d", currency, hi)
	}
	return ""
}
