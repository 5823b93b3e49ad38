package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/jobradar/internal/model"
)

type stubAdapter struct {
	name string
}

func (s stubAdapter) Name() string           { return s.name }
func (s stubAdapter) Timeout() time.Duration { return time.Second }
func (s stubAdapter) Fetch(context.Context, model.SearchRequest) ([]model.JobPosting, error) {
	return nil, nil
}

func names(adapters []Adapter) []string {
	out := make([]string, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.Name())
	}
	return out
}

func TestRegistrySelect(t *testing.T) {
	reg, err := NewRegistry(stubAdapter{"remotive"}, stubAdapter{"remoteok"}, stubAdapter{"geekhunter"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		sources []string
		want    []string
	}{
		{"empty selects all", nil, []string{"remotive", "remoteok", "geekhunter"}},
		{"all keyword", []string{"all"}, []string{"remotive", "remoteok", "geekhunter"}},
		{"registry order kept", []string{"geekhunter", "remotive"}, []string{"remotive", "geekhunter"}},
		{"comma separated", []string{"GeekHunter, remoteok"}, []string{"remoteok", "geekhunter"}},
		{"unknown ignored", []string{"nope", "remoteok"}, []string{"remoteok"}},
		{"only unknown", []string{"nope"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(reg.Select(tt.sources)))
		})
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(stubAdapter{"remotive"}, stubAdapter{"Remotive"})
	require.Error(t, err)

	_, err = NewRegistry(stubAdapter{"all"})
	require.Error(t, err)
}

func TestRegistryPriority(t *testing.T) {
	reg, err := NewRegistry(stubAdapter{"a"}, stubAdapter{"b"})
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Priority("a"))
	assert.Equal(t, 1, reg.Priority("b"))
	assert.Equal(t, 2, reg.Priority("zzz"))

	a, ok := reg.Get(" A ")
	require.True(t, ok)
	assert.Equal(t, "a", a.Name())
}

func TestSourceLimit(t *testing.T) {
	assert.Equal(t, 50, SourceLimit(model.SearchRequest{}))
	assert.Equal(t, 100, SourceLimit(model.SearchRequest{Limit: 500}))
	assert.Equal(t, 7, SourceLimit(model.SearchRequest{Limit: 7}))
	assert.Equal(t, 40, SourceLimit(model.SearchRequest{Page: 2, PageSize: 20}))
}

func TestFinalize(t *testing.T) {
	in := []model.JobPosting{
		{Title: "  Go Developer ", Company: " Acme ", URL: "https://acme.dev/jobs/1"},
		{Title: "", URL: "https://acme.dev/jobs/2"},
		{Title: "No URL", Company: "Beta"},
		{ID: "remotive-42", Title: "Keeps id", URL: "https://x.dev/1"},
	}
	out := finalize(in, "remotive", model.CountryRemote, 0)
	require.Len(t, out, 3)

	assert.Equal(t, "Go Developer", out[0].Title)
	assert.Equal(t, "Acme", out[0].Company)
	assert.Equal(t, "remotive", out[0].Source)
	assert.Equal(t, model.CountryRemote, out[0].Country)
	assert.Regexp(t, `^remotive-[0-9a-f]{12}$`, out[0].ID)
	assert.NotNil(t, out[0].Tags)

	assert.Regexp(t, `^remotive-[0-9a-f]{12}$`, out[1].ID)
	assert.Equal(t, "remotive-42", out[2].ID)

	again := finalize(in, "remotive", model.CountryRemote, 0)
	assert.Equal(t, out[0].ID, again[0].ID)

	assert.Len(t, finalize(in, "remotive", model.CountryRemote, 1), 1)
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "", externalID("adzuna", ""))
	assert.Equal(t, "", externalID("adzuna", "0"))
	assert.Equal(t, "adzuna-123", externalID("adzuna", " 123 "))
}

func TestPlainText(t *testing.T) {
	got := PlainText("<div><p>Go  and</p><script>x()</script><li>Postgres</li></div>")
	assert.Equal(t, "Go and Postgres", got)
	assert.Equal(t, "already plain", PlainText("already   plain"))
}
