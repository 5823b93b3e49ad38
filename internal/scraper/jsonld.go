package scraper

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

// jsonLDPostings collects schema.org JobPosting blocks from the page.
func jsonLDPostings(doc *goquery.Document, pageURL string) []model.JobPosting {
	var out []model.JobPosting
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		out = append(out, parseJSONLDJobs(s.Text())...)
	})
	for i := range out {
		if out[i].URL != "" {
			out[i].URL = urlutil.Resolve(pageURL, out[i].URL)
		}
	}
	return out
}

func parseJSONLDJobs(raw string) []model.JobPosting {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	var jobs []model.JobPosting
	findJobPostings(payload, &jobs)
	return jobs
}

func findJobPostings(payload any, out *[]model.JobPosting) {
	switch t := payload.(type) {
	case map[string]any:
		if job := jobFromMap(t); job != nil {
			*out = append(*out, *job)
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				findJobPostings(item, out)
			}
		}
		if items, ok := t["itemListElement"].([]any); ok {
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if inner, ok := m["item"]; ok {
						findJobPostings(inner, out)
						continue
					}
				}
				findJobPostings(item, out)
			}
		}
	case []any:
		for _, item := range t {
			findJobPostings(item, out)
		}
	}
}

func jobFromMap(payload map[string]any) *model.JobPosting {
	if !isJobPostingType(payload["@type"]) {
		return nil
	}

	job := &model.JobPosting{
		URL:         stringField(payload["url"]),
		Title:       stringField(payload["title"]),
		Description: stringField(payload["description"]),
		Company:     orgName(payload["hiringOrganization"]),
		Location:    parseLocation(payload["jobLocation"]),
		JobType:     employmentType(payload["employmentType"]),
		Salary:      baseSalary(payload["baseSalary"]),
		PostedAt:    timePtr(parseDate(payload["datePosted"])),
		Tags:        keywordList(payload["skills"]),
	}
	if stringField(payload["jobLocationType"]) == "TELECOMMUTE" && job.Location == "" {
		job.Location = "Remote"
	}

	if job.Title == "" && job.Description == "" {
		return nil
	}
	return job
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if val, ok := t["@value"]; ok {
			if str, ok2 := val.(string); ok2 {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func orgName(v any) string {
	if name := stringField(v); name != "" {
		return name
	}
	if org, ok := v.(map[string]any); ok {
		return stringField(org["name"])
	}
	return ""
}

func parseLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if loc := parseLocation(item); loc != "" {
				return loc
			}
		}
	case map[string]any:
		if addr, ok := t["address"].(map[string]any); ok {
			return joinParts(
				stringField(addr["addressLocality"]),
				stringField(addr["addressRegion"]),
				stringField(addr["addressCountry"]),
			)
		}
		if name := stringField(t["name"]); name != "" {
			return name
		}
	}
	return ""
}

func employmentType(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func baseSalary(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return stringField(v)
	}
	currency := stringField(m["currency"])
	value, ok := m["value"].(map[string]any)
	if !ok {
		return ""
	}
	num := func(x any) string {
		switch n := x.(type) {
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64)
		case string:
			return n
		}
		return ""
	}
	lo, hi := num(value["minValue"]), num(value["maxValue"])
	if lo == "" {
		lo = num(value["value"])
	}
	amount := lo
	if hi != "" && hi != lo {
		amount = lo + " - " + hi
	}
	if amount == "" {
		return ""
	}
	return strings.TrimSpace(currency + " " + amount)
}

func keywordList(v any) []string {
	switch t := v.(type) {
	case string:
		var out []string
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			if s := stringField(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseDate(v any) time.Time {
	val := stringField(v)
	if val == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinParts(parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, strings.TrimSpace(p))
	}
	return strings.Join(out, ", ")
}
