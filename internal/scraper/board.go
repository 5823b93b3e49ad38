package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
)

// htmlBoard is the shared fetch/parse/fallback pipeline for scraped job
// boards. Structural selectors run first, then JSON-LD, then the language
// model fallback when the page had content but nothing parsed.
type htmlBoard struct {
	name     string
	baseURL  string
	country  string
	timeout  time.Duration
	fetcher  *httpx.CollyFetcher
	fallback Extractor
	logger   *slog.Logger

	searchURL func(base string, req model.SearchRequest) string
	parse     func(doc *goquery.Document, pageURL string, limit int) []model.JobPosting
}

func (b *htmlBoard) Name() string           { return b.name }
func (b *htmlBoard) Timeout() time.Duration { return b.timeout }

func (b *htmlBoard) Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error) {
	if !req.WantsCountry(b.country) {
		return nil, nil
	}
	limit := SourceLimit(req)
	pageURL := b.searchURL(b.baseURL, req)

	body, status, err := b.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		observability.IncError(observability.ClassifyFetchError(err), "scraper_"+b.name)
		return nil, fmt.Errorf("%w: %s fetch failed (status %d): %w", ErrSourceUnavailable, b.name, status, err)
	}
	observability.IncPagesScraped(b.name)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s parse failed: %w", ErrSourceUnavailable, b.name, err)
	}

	postings := b.parse(doc, pageURL, limit)
	if len(postings) == 0 {
		postings = jsonLDPostings(doc, pageURL)
	}
	if len(postings) == 0 && strings.TrimSpace(body) != "" && b.fallback != nil {
		b.logger.Info("no postings parsed, trying extraction fallback", "url", pageURL)
		extracted, err := b.fallback.Extract(ctx, body, b.name, pageURL)
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			return nil, fmt.Errorf("%s: %w", b.name, err)
		case err != nil:
			b.logger.Warn("extraction fallback failed", "url", pageURL, "error", err)
		default:
			postings = extracted
		}
	}

	return finalize(postings, b.name, b.country, limit), nil
}

// firstMatch returns the first selector in the list with any hits.
func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func fieldText(s *goquery.Selection, selector string) string {
	return collapse(s.Find(selector).First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
