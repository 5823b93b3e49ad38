package core

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

// Dedup keeps the first posting for every canonical URL and every
// (title, company) pair. Output order follows input order.
func Dedup(postings []model.JobPosting) []model.JobPosting {
	keep := dedupMask(postings)
	out := make([]model.JobPosting, 0, len(postings))
	for i, p := range postings {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// dedupMask marks the postings Dedup would keep.
func dedupMask(postings []model.JobPosting) []bool {
	seenURL := make(map[string]struct{}, len(postings))
	seenPair := make(map[string]struct{}, len(postings))
	keep := make([]bool, len(postings))
	folder := cases.Fold()

	for i, p := range postings {
		urlKey := ""
		if p.URL != "" {
			urlKey = urlutil.Canonical(p.URL)
		}
		pair := pairKey(folder, p)
		if urlKey == "" && pair == "" {
			continue
		}
		if _, dup := seenURL[urlKey]; dup && urlKey != "" {
			continue
		}
		if _, dup := seenPair[pair]; dup && pair != "" {
			continue
		}

		if urlKey != "" {
			seenURL[urlKey] = struct{}{}
		}
		if pair != "" {
			seenPair[pair] = struct{}{}
		}
		keep[i] = true
	}
	return keep
}

func pairKey(folder cases.Caser, p model.JobPosting) string {
	title := foldSpace(folder, p.Title)
	if title == "" {
		return ""
	}
	return title + "|" + foldSpace(folder, p.Company)
}

func foldSpace(folder cases.Caser, s string) string {
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// FilterByAge drops postings published more than maxAgeDays before now.
// Postings without a date are always kept.
func FilterByAge(postings []model.JobPosting, maxAgeDays int, now time.Time) []model.JobPosting {
	if maxAgeDays <= 0 {
		return postings
	}
	cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	out := postings[:0:0]
	for _, p := range postings {
		if p.PostedAt != nil && p.PostedAt.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortPostings orders postings in place. Unknown keys keep input order.
func SortPostings(postings []model.JobPosting, by string) {
	switch by {
	case model.SortSalary:
		sort.SliceStable(postings, func(i, j int) bool {
			a, aok := salaryValue(postings[i].Salary)
			b, bok := salaryValue(postings[j].Salary)
			if aok != bok {
				return aok
			}
			return a > b
		})
	case model.SortRelevance:
		sort.SliceStable(postings, func(i, j int) bool {
			return score(postings[i]) > score(postings[j])
		})
	case model.SortDate:
		sort.SliceStable(postings, func(i, j int) bool {
			return newer(postings[i].PostedAt, postings[j].PostedAt)
		})
	}
}

func score(p model.JobPosting) float64 {
	if p.RelevanceScore == nil {
		return -1
	}
	return *p.RelevanceScore
}

// newer reports whether a sorts before b by date descending, nil last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}

var salaryNumber = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(?:(k|mil)\b)?`)

// salaryValue reads the first amount in free text such as "R$ 8.000 - 12.000"
// or "USD 120k".
func salaryValue(text string) (float64, bool) {
	m := salaryNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := m[1]
	// a last separator followed by three digits groups thousands ("8.000"),
	// anything else is a decimal mark ("8,5")
	if i := strings.LastIndexAny(digits, ".,"); i >= 0 {
		whole := strings.NewReplacer(".", "", ",", "").Replace(digits[:i])
		frac := digits[i+1:]
		if len(frac) == 3 {
			digits = whole + frac
		} else {
			digits = whole + "." + frac
		}
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k", "mil":
		v *= 1000
	}
	return v, true
}
