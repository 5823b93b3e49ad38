package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/observability"
	"github.com/baxromumarov/jobradar/internal/quota"
	"github.com/baxromumarov/jobradar/internal/scraper"
)

const maxPostingText = 6000

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+\d{2,3}[\s.\-]?)?\(?\d{2,3}\)?[\s.\-]?\d{4,5}[\s.\-]?\d{4}`)
)

type contactAnswer struct {
	Email              *string  `json:"email"`
	Phone              *string  `json:"phone"`
	Requirements       []string `json:"requirements"`
	Benefits           []string `json:"benefits"`
	ApplicationProcess *string  `json:"application_process"`
	Salary             *string  `json:"salary"`
	WorkMode           *string  `json:"work_mode"`
	ContractType       *string  `json:"contract_type"`
}

// ExtractContact pulls contact details from a posting page. Emails and
// phones found in the markup are returned even when the model call is
// refused or fails.
func (f *Fallback) ExtractContact(ctx context.Context, page, baseURL string) (enr model.Enrichment, err error) {
	enr = scanContacts(page)
	enr.EnrichedAt = time.Now()

	if _, err := f.tracker.Reserve(ctx); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			observability.IncError(observability.ErrorQuota, "enrichment")
		}
		return enr, err
	}

	text := postingText(page)
	attempt := &Attempt{
		Feature:     FeatureEnrichContact,
		Source:      baseURL,
		InputSample: sample(text),
		At:          time.Now(),
	}
	rec := model.UsageRecord{Feature: FeatureEnrichContact, Model: f.client.Model()}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrExtractionFailed, r)
		}
		rec.LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			attempt.Error = err.Error()
		}
		rec.Success = attempt.Error == ""
		rec.Error = attempt.Error
		f.finish(attempt, rec)
	}()

	prompt := contactPrompt(text)
	completion, err := f.client.Complete(ctx, prompt)
	rec.InputTokens, rec.OutputTokens = tokenCounts(prompt, completion)
	if err != nil {
		observability.IncError(observability.ErrorAI, "enrichment")
		return enr, fmt.Errorf("%w: contact: %w", ErrExtractionFailed, err)
	}
	attempt.RawOutput = completion.Text

	raw, ok := firstJSON(completion.Text)
	var answer contactAnswer
	if !ok || json.Unmarshal([]byte(raw), &answer) != nil {
		attempt.Error = fmt.Sprintf("%v: unparseable contact output", ErrExtractionFailed)
		return enr, nil
	}
	mergeAnswer(&enr, answer)
	return enr, nil
}

func scanContacts(page string) model.Enrichment {
	enr := model.Enrichment{EmailsFound: []string{}, PhonesFound: []string{}}
	seenEmail := map[string]bool{}
	seenPhone := map[string]bool{}
	addEmail := func(e string) {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seenEmail[e] || !emailPattern.MatchString(e) {
			return
		}
		seenEmail[e] = true
		enr.EmailsFound = append(enr.EmailsFound, e)
	}
	addPhone := func(p string) {
		p = strings.TrimSpace(p)
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, p)
		if len(digits) < 8 {
			return
		}
		// same number with and without country code
		key := digits[max(len(digits)-10, 0):]
		if seenPhone[key] {
			return
		}
		seenPhone[key] = true
		enr.PhonesFound = append(enr.PhonesFound, p)
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page)); err == nil {
		doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			addEmail(strings.SplitN(strings.TrimPrefix(href, "mailto:"), "?", 2)[0])
		})
		doc.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			addPhone(strings.TrimPrefix(href, "tel:"))
		})
	}

	text := scraper.PlainText(page)
	for _, e := range emailPattern.FindAllString(text, -1) {
		addEmail(e)
	}
	for _, p := range phonePattern.FindAllString(text, -1) {
		addPhone(p)
	}

	if len(enr.EmailsFound) > 0 {
		enr.Email = enr.EmailsFound[0]
	}
	if len(enr.PhonesFound) > 0 {
		enr.Phone = enr.PhonesFound[0]
	}
	return enr
}

func postingText(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return truncateRunes(scraper.PlainText(page), maxPostingText)
	}
	doc.Find("script, style, noscript, header, footer, nav, aside").Remove()
	return truncateRunes(collapseWhitespace(doc.Text()), maxPostingText)
}

func mergeAnswer(enr *model.Enrichment, a contactAnswer) {
	if enr.Email == "" {
		if v := deref(a.Email); emailPattern.MatchString(v) {
			enr.Email = strings.ToLower(v)
		}
	}
	if enr.Phone == "" {
		enr.Phone = deref(a.Phone)
	}
	enr.Requirements = a.Requirements
	enr.Benefits = a.Benefits
	enr.ApplicationProcess = deref(a.ApplicationProcess)
	enr.Salary = deref(a.Salary)
	enr.WorkMode = deref(a.WorkMode)
	enr.ContractType = deref(a.ContractType)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
