package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
)

type adzunaResponse struct {
	Results []adzunaJob `json:"results"`
}

type adzunaJob struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	RedirectURL  string      `json:"redirect_url"`
	Created      string      `json:"created"`
	ContractTime string      `json:"contract_time"`
	SalaryMin    float64     `json:"salary_min"`
	SalaryMax    float64     `json:"salary_max"`
	Company      struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
		Tag   string `json:"tag"`
	} `json:"category"`
}

// AdzunaScraper queries the country-specific Adzuna search endpoint.
type AdzunaScraper struct {
	client  *http.Client
	baseURL string
	appID   string
	appKey  string
	country string
	timeout time.Duration
}

func NewAdzunaScraper(client *http.Client, appID, appKey, country string) *AdzunaScraper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if country == "" {
		country = model.CountryBrazil
	}
	return &AdzunaScraper{
		client:  client,
		baseURL: "https://api.adzuna.com/v1/api/jobs",
		appID:   appID,
		appKey:  appKey,
		country: country,
		timeout: 15 * time.Second,
	}
}

func (a *AdzunaScraper) WithBaseURL(u string) *AdzunaScraper {
	a.baseURL = u
	return a
}

func (a *AdzunaScraper) Name() string           { return "adzuna" }
func (a *AdzunaScraper) Timeout() time.Duration { return a.timeout }

func (a *AdzunaScraper) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	if !req.WantsCountry(a.country) {
		return nil, nil
	}
	if a.appID == "" || a.appKey == "" {
		return nil, fmt.Errorf("%w: adzuna: %w", ErrSourceUnavailable, errors.New("credentials not configured"))
	}

	limit := SourceLimit(req)
	page := max(req.Page, 1)
	if req.Limit > 0 {
		page = 1
	}
	q := url.Values{}
	q.Set("app_id", a.appID)
	q.Set("app_key", a.appKey)
	q.Set("results_per_page", strconv.Itoa(min(limit, 50)))
	q.Set("content-type", "application/json")
	if req.Keyword != "" {
		q.Set("what", req.Keyword)
	}
	if req.Location != "" {
		q.Set("where", req.Location)
	}
	if req.Category != "" {
		q.Set("category", req.Category)
	}
	if req.MaxAgeDays > 0 {
		q.Set("max_days_old", strconv.Itoa(req.MaxAgeDays))
	}
	target := fmt.Sprintf("%s/%s/search/%d?%s", a.baseURL, a.country, page, q.Encode())

	var data adzunaResponse
	if err := httpx.GetJSON(ctx, a.client, target, nil, &data); err != nil {
		return nil, fmt.Errorf("%w: adzuna: %w", ErrSourceUnavailable, err)
	}

	jobs := make([]model.JobPosting, 0, len(data.Results))
	for _, j := range data.Results {
		var tags []string
		if j.Category.Label != "" {
			tags = append(tags, j.Category.Label)
		}
		posted, _ := time.Parse(time.RFC3339, j.Created)
		jobs = append(jobs, model.JobPosting{
			ID:          externalID(a.Name(), j.ID.String()),
			URL:         j.RedirectURL,
			Title:       j.Title,
			Company:     j.Company.DisplayName,
			Location:    j.Location.DisplayName,
			Salary:      salaryRange(int(j.SalaryMin), int(j.SalaryMax), "BRL"),
			JobType:     j.ContractTime,
			Description: j.Description,
			Tags:        tags,
			PostedAt:    timePtr(posted),
		})
	}
	return finalize(jobs, a.Name(), a.country, limit), nil
}
