package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/baxromumarov/jobradar/internal/model"
	"github.com/baxromumarov/jobradar/internal/urlutil"
)

var errNoJSON = errors.New("no JSON value in model output")

type extractedJob struct {
	Title    string   `json:"title"`
	Company  string   `json:"company"`
	Location string   `json:"location"`
	URL      string   `json:"url"`
	Salary   *string  `json:"salary"`
	JobType  string   `json:"job_type"`
	Tags     []string `json:"tags"`
}

// firstJSON returns the first balanced {...} or [...] in text. Brackets
// inside string literals are ignored.
func firstJSON(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	for start >= 0 {
		if end, ok := matchClose(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchClose(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseJobs reads the model output as a job array or {"jobs": [...]}.
func parseJobs(output string) ([]extractedJob, error) {
	raw, ok := firstJSON(output)
	if !ok {
		return nil, errNoJSON
	}
	var jobs []extractedJob
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &jobs); err != nil {
			return nil, err
		}
		return jobs, nil
	}
	var wrapped struct {
		Jobs []extractedJob `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Jobs, nil
}

func toPostings(jobs []extractedJob, source, baseURL string) []model.JobPosting {
	out := make([]model.JobPosting, 0, len(jobs))
	for _, j := range jobs {
		title := strings.TrimSpace(j.Title)
		if title == "" {
			continue
		}
		p := model.JobPosting{
			Title:    title,
			Company:  strings.TrimSpace(j.Company),
			Location: strings.TrimSpace(j.Location),
			JobType:  strings.TrimSpace(j.JobType),
			URL:      urlutil.Resolve(baseURL, j.URL),
			Tags:     j.Tags,
			Source:   source,
		}
		if j.Salary != nil {
			p.Salary = strings.TrimSpace(*j.Salary)
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		key := p.URL
		if key == "" {
			key = p.Title + "|" + p.Company
		}
		p.ID = urlutil.JobID(source, key)
		out = append(out, p)
	}
	return out
}
