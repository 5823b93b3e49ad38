package scraper

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

// legacy list markup first, then the 2024 redesign
var wwrListingSelectors = []string{
	"section.jobs article ul li a",
	`li.new-listing-container a[href*="/remote-jobs/"]`,
}

type WWRScraper struct {
	*htmlBoard
}

func NewWWRScraper(fetcher *httpx.CollyFetcher, fallback Extractor) *WWRScraper {
	return &WWRScraper{&htmlBoard{
		name:     "weworkremotely",
		baseURL:  "https://weworkremotely.com",
		country:  model.CountryRemote,
		timeout:  30 * time.Second,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   slog.With("component", "scraper_weworkremotely"),
		searchURL: func(base string, req model.SearchRequest) string {
			if req.Keyword == "" {
				return base + "/categories/remote-programming-jobs"
			}
			return base + "/remote-jobs/search?term=" + url.QueryEscape(req.Keyword)
		},
		parse: parseWWR,
	}}
}

func (w *WWRScraper) WithBaseURL(u string) *WWRScraper {
	w.baseURL = u
	return w
}

func parseWWR(doc *goquery.Document, pageURL string, limit int) []model.JobPosting {
	links := firstMatch(doc, wwrListingSelectors)
	if links == nil {
		return nil
	}

	var jobs []model.JobPosting
	links.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, exists := s.Attr("href")
		if !exists || href == "" || !strings.Contains(href, "/remote-jobs/") {
			return true
		}
		title := firstNonEmpty(fieldText(s, "span.title"), fieldText(s, ".new-listing__header__title"))
		company := firstNonEmpty(fieldText(s, "span.company"), fieldText(s, ".new-listing__company-name"))
		if title == "" || company == "" {
			return true
		}
		region := firstNonEmpty(fieldText(s, "span.region"), fieldText(s, ".new-listing__company-headquarters"), "Remote")

		var tags []string
		s.Find(".new-listing__categories__category").Each(func(_ int, c *goquery.Selection) {
			if t := collapse(c.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		jobs = append(jobs, model.JobPosting{
			URL:         urlutil.Resolve(pageURL, href),
			Title:       title,
			Description: title + " at " + company,
			Company:     company,
			Location:    region,
			Tags:        tags,
		})
		return len(jobs) < limit
	})
	return jobs
}
