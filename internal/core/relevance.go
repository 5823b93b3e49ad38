package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/scraper"
)

const (
	defaultTopSkills = 5
	defaultMaxPasses = 3
	maxExperienceKws = 2

	weightTitle       = 3
	weightTags        = 2
	weightDescription = 1
)

type ResumeProvider interface {
	LoadResume(ctx context.Context) (*model.Resume, error)
}

type SmartSearchRequest struct {
	Country    string   `json:"country"`
	Sources    []string `json:"sources,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	MaxAgeDays int      `json:"maxAgeDays,omitempty"`
	Page       int      `json:"page,omitempty"`
	PageSize   int      `json:"pageSize,omitempty"`
}

type SmartSearchResult struct {
	*SearchResult
	Keywords   []string `json:"keywords"`
	ResumeName string   `json:"resumeName"`
	SkillsUsed []string `json:"skillsUsed"`
}

// Scorer runs resume-driven searches and ranks postings by skill overlap.
type Scorer struct {
	agg       *Aggregator
	resumes   ResumeProvider
	topSkills int
	maxPasses int
	logger    *slog.Logger
}

func NewScorer(agg *Aggregator, resumes ResumeProvider) *Scorer {
	return &Scorer{
		agg:       agg,
		resumes:   resumes,
		topSkills: defaultTopSkills,
		maxPasses: defaultMaxPasses,
		logger:    slog.With("component", "relevance"),
	}
}

func (s *Scorer) WithPasses(topSkills, maxPasses int) *Scorer {
	if topSkills > 0 {
		s.topSkills = topSkills
	}
	if maxPasses > 0 {
		s.maxPasses = maxPasses
	}
	return s
}

// DeriveKeywords returns the first topSkills skills in resume order plus up
// to two distinct experience titles, without case-insensitive repeats.
func DeriveKeywords(resume model.Resume, topSkills int) []string {
	if topSkills <= 0 {
		topSkills = defaultTopSkills
	}
	seen := map[string]bool{}
	var out []string
	add := func(s string) bool {
		s = strings.Join(strings.Fields(s), " ")
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return false
		}
		seen[key] = true
		out = append(out, s)
		return true
	}

	skills := 0
	for _, sk := range resume.Skills {
		if skills >= topSkills {
			break
		}
		if add(sk.Name) {
			skills++
		}
	}
	titles := 0
	for _, exp := range resume.Experiences {
		if titles >= maxExperienceKws {
			break
		}
		if add(exp.Title) {
			titles++
		}
	}
	return out
}

func (s *Scorer) SmartSearch(ctx context.Context, req SmartSearchRequest) (*SmartSearchResult, error) {
	resume, err := s.resumes.LoadResume(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resume: %w", err)
	}
	keywords := DeriveKeywords(*resume, s.topSkills)
	skills := skillNames(*resume)

	passes := keywords
	if len(passes) > s.maxPasses {
		passes = passes[:s.maxPasses]
	}

	var all []model.JobPosting
	apis := map[string]string{}
	failedPasses := 0
	for _, kw := range passes {
		merged, err := s.agg.Collect(ctx, model.SearchRequest{
			Keyword:    kw,
			Country:    req.Country,
			Sources:    req.Sources,
			Limit:      scraper.SourceLimit(model.SearchRequest{Limit: req.Limit}),
			MaxAgeDays: req.MaxAgeDays,
		})
		if merged == nil {
			return nil, err
		}
		if errors.Is(err, ErrAllSourcesFailed) {
			failedPasses++
			s.logger.Warn("smart search pass failed on every source", "keyword", kw)
		}
		for name, status := range merged.APIs {
			apis[name] = betterStatus(apis[name], status)
		}
		all = append(all, merged.Jobs...)
	}

	jobs := Dedup(all)
	for i := range jobs {
		sc := ScorePosting(jobs[i], skills)
		jobs[i].RelevanceScore = &sc
	}
	s.rank(jobs)

	res := paginate(jobs, model.SearchRequest{Limit: req.Limit, Page: req.Page, PageSize: req.PageSize})
	res.APIs = apis
	out := &SmartSearchResult{
		SearchResult: res,
		Keywords:     keywords,
		ResumeName:   resume.Name,
		SkillsUsed:   skills,
	}
	if len(passes) > 0 && failedPasses == len(passes) {
		return out, ErrAllSourcesFailed
	}
	return out, nil
}

// rank sorts by score, then recency, then source registry order.
func (s *Scorer) rank(jobs []model.JobPosting) {
	reg := s.agg.Registry()
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := score(jobs[i]), score(jobs[j])
		if a != b {
			return a > b
		}
		pi, pj := jobs[i].PostedAt, jobs[j].PostedAt
		if (pi == nil) != (pj == nil) || (pi != nil && !pi.Equal(*pj)) {
			return newer(pi, pj)
		}
		return reg.Priority(jobs[i].Source) < reg.Priority(jobs[j].Source)
	})
}

func betterStatus(a, b string) string {
	rank := func(s string) int {
		switch s {
		case StatusOK:
			return 3
		case StatusEmpty:
			return 2
		case "":
			return 0
		}
		return 1
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func skillNames(resume model.Resume) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, sk := range resume.Skills {
		name := strings.TrimSpace(sk.Name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out
}

// ScorePosting sums, over distinct skills, the weight of the best place
// the skill appears: title, tags or description.
func ScorePosting(p model.JobPosting, skills []string) float64 {
	title := strings.ToLower(p.Title)
	tags := strings.ToLower(strings.Join(p.Tags, " "))
	desc := strings.ToLower(scraper.PlainText(p.Description))

	titleTokens := tokenSet(title)
	tagTokens := tokenSet(tags)
	for _, t := range p.Tags {
		tagTokens[strings.ToLower(strings.TrimSpace(t))] = true
	}
	descTokens := tokenSet(desc)

	total := 0
	seen := map[string]bool{}
	for _, skill := range skills {
		sk := strings.ToLower(strings.TrimSpace(skill))
		if sk == "" || seen[sk] {
			continue
		}
		seen[sk] = true

		short := utf8.RuneCountInString(sk) <= 3
		matches := func(text string, tokens map[string]bool) bool {
			if short {
				return tokens[sk]
			}
			return strings.Contains(text, sk)
		}
		switch {
		case matches(title, titleTokens):
			total += weightTitle
		case matches(tags, tagTokens):
			total += weightTags
		case matches(desc, descTokens):
			total += weightDescription
		}
	}
	return float64(total)
}

// tokenSet splits on anything that cannot be part of a skill name, so
// "c++", "c#" and ".net" survive as tokens.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, ".")
		if f != "" {
			out[f] = true
		}
	}
	return out
}
