package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
)

type itJobsResponse struct {
	Total   int         `json:"total"`
	Results []itJobsJob `json:"results"`
}

type itJobsJob struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Body        string      `json:"body"`
	PublishedAt string      `json:"publishedAt"`
	Wage        *string     `json:"wage"`
	AllowRemote bool        `json:"allowRemote"`
	Company     struct {
		Name string `json:"name"`
	} `json:"company"`
	Locations []struct {
		Name string `json:"name"`
	} `json:"locations"`
	Types []struct {
		Name string `json:"name"`
	} `json:"types"`
}

// ITJobsScraper reads the itjobs.pt public API (Portugal only).
type ITJobsScraper struct {
	client  *http.Client
	baseURL string
	siteURL string
	apiKey  string
	timeout time.Duration
}

func NewITJobsScraper(client *http.Client, apiKey string) *ITJobsScraper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ITJobsScraper{
		client:  client,
		baseURL: "https://api.itjobs.pt/job/search.json",
		siteURL: "https://www.itjobs.pt",
		apiKey:  apiKey,
		timeout: 10 * time.Second,
	}
}

func (s *ITJobsScraper) WithBaseURL(u string) *ITJobsScraper {
	s.baseURL = u
	return s
}

func (s *ITJobsScraper) Name() string           { return "itjobs" }
func (s *ITJobsScraper) Timeout() time.Duration { return s.timeout }

func (s *ITJobsScraper) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	if !req.WantsCountry(model.CountryPortugal) {
		return nil, nil
	}
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: itjobs: %w", ErrSourceUnavailable, errors.New("api key not configured"))
	}

	limit := SourceLimit(req)
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("limit", strconv.Itoa(limit))
	if req.Keyword != "" {
		q.Set("q", req.Keyword)
	}

	// the API rejects requests without a user agent
	hdr := http.Header{}
	hdr.Set("User-Agent", httpx.BrowserUserAgent)

	var data itJobsResponse
	if err := httpx.GetJSON(ctx, s.client, s.baseURL+"?"+q.Encode(), hdr, &data); err != nil {
		return nil, fmt.Errorf("%w: itjobs: %w", ErrSourceUnavailable, err)
	}

	jobs := make([]model.JobPosting, 0, len(data.Results))
	for _, j := range data.Results {
		var locs []string
		for _, l := range j.Locations {
			locs = append(locs, l.Name)
		}
		location := strings.Join(locs, ", ")
		if j.AllowRemote {
			location = joinParts(location, "Remote")
		}
		var jobType string
		if len(j.Types) > 0 {
			jobType = j.Types[0].Name
		}
		var wage string
		if j.Wage != nil {
			wage = *j.Wage
		}
		posted, _ := time.Parse("2006-01-02 15:04:05", j.PublishedAt)

		jobs = append(jobs, model.JobPosting{
			ID:          externalID(s.Name(), j.ID.String()),
			URL:         fmt.Sprintf("%s/oferta/%s/%s", s.siteURL, j.ID.String(), j.Slug),
			Title:       j.Title,
			Company:     j.Company.Name,
			Location:    location,
			Salary:      wage,
			JobType:     jobType,
			Description: j.Body,
			PostedAt:    timePtr(posted),
		})
	}
	return finalize(jobs, s.Name(), model.CountryPortugal, limit), nil
}
