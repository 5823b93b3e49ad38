package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/model"
)

type resumeFake struct {
	resume *model.Resume
	err    error
}

func (r resumeFake) LoadResume(context.Context) (*model.Resume, error) { return r.resume, r.err }

var goResume = &model.Resume{
	Name: "Ana Dev",
	Skills: []model.Skill{
		{Name: "Go"}, {Name: "PostgreSQL"}, {Name: "go"}, {Name: "Kubernetes"},
	},
	Experiences: []model.Experience{
		{Title: "Backend Engineer"}, {Title: "backend engineer"}, {Title: "SRE"}, {Title: "Intern"},
	},
}

func TestDeriveKeywords(t *testing.T) {
	assert.Equal(t,
		[]string{"Go", "PostgreSQL", "Kubernetes", "Backend Engineer", "SRE"},
		DeriveKeywords(*goResume, 5))
	assert.Equal(t,
		[]string{"Go", "PostgreSQL", "Backend Engineer", "SRE"},
		DeriveKeywords(*goResume, 2))
	assert.Empty(t, DeriveKeywords(model.Resume{}, 5))
}

func TestScorePosting(t *testing.T) {
	skills := []string{"Go", "PostgreSQL", "Kubernetes", "C++"}
	tests := []struct {
		name string
		p    model.JobPosting
		want float64
	}{
		{"title beats tags", model.JobPosting{Title: "Go Engineer", Tags: []string{"go"}}, 3},
		{"tag match", model.JobPosting{Title: "Backend", Tags: []string{"postgresql"}}, 2},
		{"description match", model.JobPosting{Title: "Backend", Description: "<p>We run Kubernetes</p>"}, 1},
		{"short skill needs a whole token", model.JobPosting{Title: "Google Cloud Lead"}, 0},
		{"symbol skill token", model.JobPosting{Title: "Senior C++ developer"}, 3},
		{"all places", model.JobPosting{
			Title:       "Go developer",
			Tags:        []string{"PostgreSQL"},
			Description: "kubernetes clusters",
		}, 6},
		{"nothing", model.JobPosting{Title: "Chef"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScorePosting(tt.p, skills))
		})
	}
}

func TestSmartSearchRanksAndReports(t *testing.T) {
	now := time.Now()
	src := &fakeAdapter{name: "remotive", postings: []model.JobPosting{
		{ID: "weak", Title: "Support Analyst", URL: "https://x.com/1", PostedAt: at(now)},
		{ID: "strong", Title: "Go Engineer", Tags: []string{"postgresql"}, URL: "https://x.com/2", PostedAt: at(now.Add(-48 * time.Hour))},
		{ID: "mid-old", Title: "Kubernetes Operator", URL: "https://x.com/3", PostedAt: at(now.Add(-72 * time.Hour))},
		{ID: "mid-new", Title: "Kubernetes Admin", URL: "https://x.com/4", PostedAt: at(now.Add(-time.Hour))},
	}}
	agg := NewAggregator(newRegistry(t, src))
	scorer := NewScorer(agg, resumeFake{resume: goResume})

	res, err := scorer.SmartSearch(context.Background(), SmartSearchRequest{Country: model.CountryAll})
	require.NoError(t, err)

	assert.Equal(t, []string{"strong", "mid-new", "mid-old", "weak"}, ids(res.Jobs))
	require.NotNil(t, res.Jobs[0].RelevanceScore)
	assert.Equal(t, 5.0, *res.Jobs[0].RelevanceScore)
	assert.Equal(t, "Ana Dev", res.ResumeName)
	assert.Equal(t, []string{"Go", "PostgreSQL", "Kubernetes"}, res.SkillsUsed)
	assert.Equal(t, DeriveKeywords(*goResume, 5), res.Keywords)
	assert.Equal(t, StatusOK, res.APIs["remotive"])

	calls := src.Calls()
	require.Len(t, calls, 3, "one pass per keyword up to the pass limit")
	assert.Equal(t, "Go", calls[0].Keyword)
	assert.Equal(t, "Kubernetes", calls[2].Keyword)
}

func TestSmartSearchTieBreaksBySourcePriority(t *testing.T) {
	first := &fakeAdapter{name: "first", delay: 20 * time.Millisecond, postings: []model.JobPosting{
		{ID: "first-1", Title: "Go Dev", Company: "A", URL: "https://a.com/1"},
	}}
	second := &fakeAdapter{name: "second", postings: []model.JobPosting{
		{ID: "second-1", Title: "Go Dev", Company: "B", URL: "https://b.com/1"},
	}}
	agg := NewAggregator(newRegistry(t, first, second))
	scorer := NewScorer(agg, resumeFake{resume: &model.Resume{Skills: []model.Skill{{Name: "Go"}}}})

	res, err := scorer.SmartSearch(context.Background(), SmartSearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first-1", "second-1"}, ids(res.Jobs))
}

func TestSmartSearchErrors(t *testing.T) {
	agg := NewAggregator(newRegistry(t, &fakeAdapter{name: "down", err: errUpstream}))

	_, err := NewScorer(agg, resumeFake{err: errors.New("no resume")}).SmartSearch(context.Background(), SmartSearchRequest{})
	assert.ErrorContains(t, err, "no resume")

	res, err := NewScorer(agg, resumeFake{resume: goResume}).WithPasses(5, 1).
		SmartSearch(context.Background(), SmartSearchRequest{})
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	require.NotNil(t, res)
	assert.Equal(t, StatusError, res.APIs["down"])
}

func TestSmartSearchPaginates(t *testing.T) {
	var postings []model.JobPosting
	for _, u := range []string{"1", "2", "3", "4", "5"} {
		postings = append(postings, model.JobPosting{ID: u, Title: "Go " + u, URL: "https://x.com/" + u})
	}
	agg := NewAggregator(newRegistry(t, &fakeAdapter{name: "a", postings: postings}))
	scorer := NewScorer(agg, resumeFake{resume: &model.Resume{Skills: []model.Skill{{Name: "Go"}}}})

	res, err := scorer.SmartSearch(context.Background(), SmartSearchRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.TotalPages)
	assert.Len(t, res.Jobs, 2)
	assert.True(t, res.HasMore)
}
