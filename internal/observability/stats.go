package observability

import (
	"sync"
	"sync/atomic"
)

type StatsSnapshot struct {
	SearchesRun       uint64            `json:"searches_run"`
	PostingsFetched   uint64            `json:"postings_fetched"`
	PagesScraped      uint64            `json:"pages_scraped"`
	ExtractionCalls   uint64            `json:"extraction_calls"`
	AlertsRun         uint64            `json:"alerts_run"`
	AlertMatches      uint64            `json:"alert_matches"`
	ErrorsTotal       uint64            `json:"errors_total"`
	AdapterSecondsAvg float64           `json:"adapter_seconds_avg"`
	SourceStatuses    map[string]uint64 `json:"source_statuses,omitempty"`
	ErrorsByType      map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByComponent map[string]uint64 `json:"errors_by_component,omitempty"`
}

var (
	searchesRun     uint64
	postingsFetched uint64
	pagesScraped    uint64
	extractionCalls uint64
	alertsRun       uint64
	alertMatches    uint64
	errorsTotal     uint64

	adapterCount uint64
	adapterNanos uint64

	statsMu           sync.Mutex
	sourceStatuses    = map[string]uint64{}
	errorsByType      = map[string]uint64{}
	errorsByComponent = map[string]uint64{}
)

func IncSearch() {
	atomic.AddUint64(&searchesRun, 1)
	searchesTotal.Inc()
}

func AddPostingsFetched(source string, n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&postingsFetched, uint64(n))
	postingsTotal.WithLabelValues(source).Add(float64(n))
}

func IncPagesScraped(source string) {
	atomic.AddUint64(&pagesScraped, 1)
	pagesTotal.WithLabelValues(source).Inc()
}

func IncExtractionCall(feature string, success bool) {
	atomic.AddUint64(&extractionCalls, 1)
	result := "ok"
	if !success {
		result = "failed"
	}
	extractionTotal.WithLabelValues(feature, result).Inc()
}

func IncAlertRun(newMatches int) {
	atomic.AddUint64(&alertsRun, 1)
	if newMatches > 0 {
		atomic.AddUint64(&alertMatches, uint64(newMatches))
	}
	alertRunsTotal.Inc()
	alertMatchesTotal.Add(float64(max(newMatches, 0)))
}

// IncSourceStatus counts one "<source>:<status>" outcome of a fan-out call.
func IncSourceStatus(source, status string) {
	if status == "" {
		status = "unknown"
	}
	statsMu.Lock()
	sourceStatuses[source+":"+status]++
	statsMu.Unlock()
	sourceStatusTotal.WithLabelValues(source, status).Inc()
}

func ObserveAdapterDuration(source string, seconds float64) {
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&adapterCount, 1)
	atomic.AddUint64(&adapterNanos, uint64(seconds*1e9))
	adapterDuration.WithLabelValues(source).Observe(seconds)
}

func IncError(errType, component string) {
	if errType == "" {
		errType = "unknown"
	}
	if component == "" {
		component = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByComponent[component]++
	statsMu.Unlock()
	errorsTotalVec.WithLabelValues(errType, component).Inc()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	statusCopy := copyMap(sourceStatuses)
	errorsTypeCopy := copyMap(errorsByType)
	errorsComponentCopy := copyMap(errorsByComponent)
	statsMu.Unlock()

	count := atomic.LoadUint64(&adapterCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&adapterNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		SearchesRun:       atomic.LoadUint64(&searchesRun),
		PostingsFetched:   atomic.LoadUint64(&postingsFetched),
		PagesScraped:      atomic.LoadUint64(&pagesScraped),
		ExtractionCalls:   atomic.LoadUint64(&extractionCalls),
		AlertsRun:         atomic.LoadUint64(&alertsRun),
		AlertMatches:      atomic.LoadUint64(&alertMatches),
		ErrorsTotal:       atomic.LoadUint64(&errorsTotal),
		AdapterSecondsAvg: avg,
		SourceStatuses:    statusCopy,
		ErrorsByType:      errorsTypeCopy,
		ErrorsByComponent: errorsComponentCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
