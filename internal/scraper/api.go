package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

var ErrSourceUnavailable = errors.New("source unavailable")

const (
	defaultSourceLimit = 50
	maxSourceLimit     = 100
)

// Adapter fetches postings from one provider. Unsupported request fields
// are ignored. A country mismatch yields no postings and no error.
type Adapter interface {
	Name() string
	Timeout() time.Duration
	Fetch(ctx context.Context, req model.SearchRequest) ([]model.JobPosting, error)
}

// Extractor is the language model fallback used when a page parses to
// zero postings.
type Extractor interface {
	Extract(ctx context.Context, html, sourceLabel, baseURL string) ([]model.JobPosting, error)
}

// Registry holds adapters in fan-out priority order.
type Registry struct {
	adapters []Adapter
	byName   map[string]int
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byName: make(map[string]int)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(a Adapter) error {
	name := strings.ToLower(a.Name())
	if name == "" || name == "all" {
		return fmt.Errorf("invalid adapter name %q", a.Name())
	}
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.byName[name] = len(r.adapters)
	r.adapters = append(r.adapters, a)
	return nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Name())
	}
	return out
}

func (r *Registry) Get(name string) (Adapter, bool) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return r.adapters[idx], true
}

// Priority is the registry position of name; unknown names sort last.
func (r *Registry) Priority(name string) int {
	if idx, ok := r.byName[strings.ToLower(name)]; ok {
		return idx
	}
	return len(r.adapters)
}

// Select resolves requested names to adapters in registry order. Empty
// input or "all" selects everything; unknown names are ignored.
func (r *Registry) Select(sources []string) []Adapter {
	want := make(map[string]struct{})
	for _, s := range sources {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if part == "all" {
				return append([]Adapter(nil), r.adapters...)
			}
			want[part] = struct{}{}
		}
	}
	if len(want) == 0 {
		return append([]Adapter(nil), r.adapters...)
	}
	var out []Adapter
	for _, a := range r.adapters {
		if _, ok := want[strings.ToLower(a.Name())]; ok {
			out = append(out, a)
		}
	}
	return out
}

// SourceLimit is how many postings one adapter should return for req.
func SourceLimit(req model.SearchRequest) int {
	limit := req.Limit
	if limit <= 0 {
		limit = req.PageSize * max(req.Page, 1)
	}
	if limit <= 0 {
		return defaultSourceLimit
	}
	return min(limit, maxSourceLimit)
}

// finalize stamps source, country and a stable id on every posting and
// drops entries without a title.
func finalize(postings []model.JobPosting, source, country string, limit int) []model.JobPosting {
	out := make([]model.JobPosting, 0, len(postings))
	for _, p := range postings {
		p.Title = strings.TrimSpace(p.Title)
		if p.Title == "" {
			continue
		}
		p.Source = source
		if p.Country == "" {
			p.Country = country
		}
		p.Company = strings.TrimSpace(p.Company)
		p.URL = strings.TrimSpace(p.URL)
		if p.ID == "" {
			key := p.URL
			if key == "" {
				key = p.Title + "|" + p.Company
			}
			p.ID = urlutil.JobID(source, key)
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func externalID(source, id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == "0" {
		return ""
	}
	return source + "-" + id
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
