package scraper

import (
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

type VagasScraper struct {
	*htmlBoard
}

func NewVagasScraper(fetcher *httpx.CollyFetcher, fallback Extractor) *VagasScraper {
	return &VagasScraper{&htmlBoard{
		name:     "vagascombr",
		baseURL:  "https://www.vagas.com.br",
		country:  model.CountryBrazil,
		timeout:  45 * time.Second,
		fetcher:  fetcher,
		fallback: fallback,
		logger:   slog.With("component", "scraper_vagascombr"),
		searchURL: func(base string, req model.SearchRequest) string {
			if slug := slugify(req.Keyword); slug != "" {
				return base + "/vagas-de-" + slug
			}
			return base + "/vagas"
		},
		parse: parseVagas,
	}}
}

func (v *VagasScraper) WithBaseURL(u string) *VagasScraper {
	v.baseURL = u
	return v
}

func parseVagas(doc *goquery.Document, pageURL string, limit int) []model.JobPosting {
	seen := make(map[string]struct{})
	var jobs []model.JobPosting
	doc.Find("a.link-detalhes-vaga").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		jobURL := urlutil.Resolve(pageURL, href)
		title := collapse(link.AttrOr("title", ""))
		if title == "" {
			title = collapse(link.Text())
		}
		if jobURL == "" || title == "" {
			return true
		}
		if _, dup := seen[jobURL]; dup {
			return true
		}
		seen[jobURL] = struct{}{}

		container := link.Closest("li")
		if container.Length() == 0 {
			container = link.Closest("div")
		}
		level := fieldText(container, ".nivelVaga, .nivel")

		posting := model.JobPosting{
			URL:      jobURL,
			Title:    title,
			Company:  firstNonEmpty(fieldText(container, ".emprVaga, .empresa"), "Empresa confidencial"),
			Location: firstNonEmpty(fieldText(container, ".vaga-local, .local"), "Brasil"),
			JobType:  "On-site",
		}
		if level != "" {
			posting.Description = "Nivel: " + level
			posting.Tags = []string{level}
		}
		jobs = append(jobs, posting)
		return len(jobs) < limit
	})
	return jobs
}

// slugify turns "Desenvolvedor Go Júnior" into "desenvolvedor-go-junior".
func slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(s)
	}
	var b strings.Builder
	dash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
