package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
)

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID                json.Number `json:"id"`
	URL               string      `json:"url"`
	Title             string      `json:"title"`
	CompanyName       string      `json:"company_name"`
	Category          string      `json:"category"`
	Tags              []string    `json:"tags"`
	JobType           string      `json:"job_type"`
	PublicationDate   string      `json:"publication_date"`
	CandidateLocation string      `json:"candidate_required_location"`
	Salary            string      `json:"salary"`
	Description       string      `json:"description"`
}

type RemotiveScraper struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

func NewRemotiveScraper(client *http.Client) *RemotiveScraper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemotiveScraper{
		client:  client,
		baseURL: "https://remotive.com/api/remote-jobs",
		timeout: 10 * time.Second,
	}
}

func (r *RemotiveScraper) WithBaseURL(u string) *RemotiveScraper {
	r.baseURL = u
	return r
}

func (r *RemotiveScraper) Name() string           { return "remotive" }
func (r *RemotiveScraper) Timeout() time.Duration { return r.timeout }

func (r *RemotiveScraper) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	if !req.WantsCountry(model.CountryRemote) {
		return nil, nil
	}

	limit := SourceLimit(req)
	q := url.Values{}
	if req.Keyword != "" {
		q.Set("search", req.Keyword)
	}
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	q.Set("limit", strconv.Itoa(limit))

	var data remotiveResponse
	if err := httpx.GetJSON(ctx, r.client, r.baseURL+"?"+q.Encode(), nil, &data); err != nil {
		return nil, fmt.Errorf("%w: remotive: %w", ErrSourceUnavailable, err)
	}

	jobs := make([]model.JobPosting, 0, len(data.Jobs))
	for _, j := range data.Jobs {
		jobs = append(jobs, model.JobPosting{
			ID:          externalID(r.Name(), j.ID.String()),
			URL:         j.URL,
			Title:       j.Title,
			Company:     j.CompanyName,
			Location:    firstNonEmpty(j.CandidateLocation, "Remote"),
			Salary:      j.Salary,
			JobType:     j.JobType,
			Description: j.Description,
			Tags:        j.Tags,
			PostedAt:    timePtr(parseRemotiveDate(j.PublicationDate)),
		})
	}
	return finalize(jobs, r.Name(), model.CountryRemote, limit), nil
}

func parseRemotiveDate(val string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, val); err == nil {
			return t
		}
	}
	return time.Time{}
}
