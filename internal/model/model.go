package model

import (
	"encoding/json"
	"time"
)

const (
	CountryBrazil   = "br"
	CountryPortugal = "pt"
	CountryRemote   = "remote"
	CountryAll      = "all"
)

const (
	SortNone      = ""
	SortSalary    = "salary"
	SortRelevance = "relevance"
	SortDate      = "date"
)

// JobPosting is the normalized record every adapter produces.
type JobPosting struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location,omitempty"`
	Salary         string     `json:"salary,omitempty"`
	JobType        string     `json:"jobType,omitempty"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags"`
	URL            string     `json:"url"`
	Source         string     `json:"source"`
	Country        string     `json:"country,omitempty"`
	PostedAt       *time.Time `json:"postedAt,omitempty"`
	RelevanceScore *float64   `json:"relevanceScore,omitempty"`
}

// SearchRequest is built once per request and never mutated after.
type SearchRequest struct {
	Keyword    string          `json:"keyword,omitempty"`
	Location   string          `json:"location,omitempty"`
	Category   string          `json:"category,omitempty"`
	Country    string          `json:"country"`
	Sources    []string        `json:"sources,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	MaxAgeDays int             `json:"maxAgeDays,omitempty"`
	Page       int             `json:"page,omitempty"`
	PageSize   int             `json:"pageSize,omitempty"`
	SortBy     string          `json:"sortBy,omitempty"`
	Filters    json.RawMessage `json:"filters,omitempty"`
}

// WantsCountry reports whether an adapter serving country c should run.
func (r SearchRequest) WantsCountry(c string) bool {
	return r.Country == "" || r.Country == CountryAll || r.Country == c
}

type AlertDefinition struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Keyword         string          `json:"keyword"`
	Countries       []string        `json:"countries"`
	Sources         []string        `json:"sources"`
	Filters         json.RawMessage `json:"filters,omitempty"`
	IsActive        bool            `json:"isActive"`
	ScheduleEnabled bool            `json:"scheduleEnabled"`
	ScheduleHours   []int           `json:"scheduleHours"`
	ScheduleDays    []int           `json:"scheduleDays"`
	NextRun         *time.Time      `json:"nextRun,omitempty"`
	LastRun         *time.Time      `json:"lastRun,omitempty"`
	EmailOnMatch    bool            `json:"emailOnMatch"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type AlertMatch struct {
	AlertID   string    `json:"alertId"`
	JobID     string    `json:"jobId"`
	JobTitle  string    `json:"jobTitle"`
	Company   string    `json:"company"`
	JobURL    string    `json:"jobUrl,omitempty"`
	MatchedAt time.Time `json:"matchedAt"`
}

type QuotaState struct {
	DailyUsed      int     `json:"dailyUsed"`
	MonthlyUsed    int     `json:"monthlyUsed"`
	DailyLimit     int     `json:"dailyLimit"`
	MonthlyLimit   int     `json:"monthlyLimit"`
	AlertThreshold float64 `json:"alertThreshold"`
}

func (q QuotaState) WithinLimits() bool {
	return q.DailyUsed < q.DailyLimit && q.MonthlyUsed < q.MonthlyLimit
}

// NearLimit is true once either counter crosses AlertThreshold (a 0..1 ratio).
func (q QuotaState) NearLimit() bool {
	if q.AlertThreshold <= 0 {
		return false
	}
	ratio := func(used, limit int) float64 {
		if limit <= 0 {
			return 1
		}
		return float64(used) / float64(limit)
	}
	return ratio(q.DailyUsed, q.DailyLimit) >= q.AlertThreshold ||
		ratio(q.MonthlyUsed, q.MonthlyLimit) >= q.AlertThreshold
}

type UsageRecord struct {
	Feature      string    `json:"feature"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	LatencyMs    int64     `json:"latencyMs"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company,omitempty"`
	Description string `json:"description,omitempty"`
}

type Resume struct {
	Name        string       `json:"name"`
	Skills      []Skill      `json:"skills"`
	Experiences []Experience `json:"experiences"`
}

type Enrichment struct {
	JobID              string    `json:"jobId"`
	Email              string    `json:"email,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	EmailsFound        []string  `json:"emailsFound"`
	PhonesFound        []string  `json:"phonesFound"`
	Requirements       []string  `json:"requirements,omitempty"`
	Benefits           []string  `json:"benefits,omitempty"`
	ApplicationProcess string    `json:"applicationProcess,omitempty"`
	Salary             string    `json:"salary,omitempty"`
	WorkMode           string    `json:"workMode,omitempty"`
	ContractType       string    `json:"contractType,omitempty"`
	EnrichedAt         time.Time `json:"enrichedAt"`
}
