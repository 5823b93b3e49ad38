package scraper

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

var geekHunterCardSelectors = []string{
	`[data-testid="job-card"]`,
	".job-card",
	".vaga-card",
	`a[href*="/vagas/"]`,
}

type GeekHunterScraper struct {
	*htmlBoard
}

func NewGeekHunterScraper(fetcher *httpx.CollyFetcher, fallback Extractor) *GeekHunterScraper {
	return &GeekHunterScraper{&htmlBoard{
		name:     "geekhunter",
		baseURL:  "https://www.geekhunter.com.br",
		country:  model.CountryBrazil,
		timeout:  45 * time.Second,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   slog.With("component", "scraper_geekhunter"),
		searchURL: func(base string, req model.SearchRequest) string {
			return base + "/vagas?search=" + url.QueryEscape(req.Keyword)
		},
		parse: parseGeekHunter,
	}}
}

func (g *GeekHunterScraper) WithBaseURL(u string) *GeekHunterScraper {
	g.baseURL = u
	return g
}

func parseGeekHunter(doc *goquery.Document, pageURL string, limit int) []model.JobPosting {
	cards := firstMatch(doc, geekHunterCardSelectors)
	if cards == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var jobs []model.JobPosting
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link := card
		if goquery.NodeName(card) != "a" {
			link = card.Find(`a[href*="/vagas/"]`).First()
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return true
		}
		jobURL := urlutil.Resolve(pageURL, href)
		if _, dup := seen[jobURL]; dup || jobURL == "" {
			return true
		}

		title := fieldText(card, `h2, h3, .job-title, [data-testid="job-title"]`)
		if title == "" {
			title = collapse(link.Text())
		}
		if len(title) < 5 {
			return true
		}
		seen[jobURL] = struct{}{}

		var tags []string
		card.Find(".tag, .skill, .tech-stack span").EachWithBreak(func(i int, s *goquery.Selection) bool {
			if t := collapse(s.Text()); t != "" {
				tags = append(tags, t)
			}
			return len(tags) < 10
		})

		jobs = append(jobs, model.JobPosting{
			URL:      jobURL,
			Title:    title,
			Company:  firstNonEmpty(fieldText(card, `.company, .empresa, [data-testid="company-name"]`), "Empresa nao identificada"),
			Location: firstNonEmpty(fieldText(card, `.location, .local, [data-testid="location"]`), "Brasil"),
			Salary:   fieldText(card, `.salary, .salario, [data-testid="salary"]`),
			JobType:  "On-site",
			Tags:     tags,
		})
		return len(jobs) < limit
	})
	return jobs
}
