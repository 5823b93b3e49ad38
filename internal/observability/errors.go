package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/baxromumarov/jobradar/internal/httpx"
	"github.com/baxromumarov/jobradar/internal/quota"
)

// Error types used as the "type" label on error counters.
const (
	ErrorNetwork   = "network"
	ErrorTimeout   = "timeout"
	ErrorParsing   = "parsing"
	ErrorAI        = "ai"
	ErrorQuota     = "quota"
	ErrorRateLimit = "rate_limit"
	ErrorAuth      = "auth"
	ErrorBlocked   = "blocked"
	ErrorNotFound  = "not_found"
	ErrorStore     = "store"
	ErrorNotify    = "notify"
	ErrorUnknown   = "unknown"
)

// ClassifyFetchError maps transport failures. Anything it does not
// recognise is ErrorUnknown.
func ClassifyFetchError(err error) string {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, httpx.ErrBlockedByRobots):
		return ErrorBlocked
	}

	var fe *httpx.FetchError
	if !errors.As(err, &fe) {
		return ErrorUnknown
	}
	switch fe.Status {
	case http.StatusTooManyRequests:
		return ErrorRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorAuth
	case http.StatusNotFound, http.StatusGone:
		return ErrorNotFound
	}
	return ErrorNetwork
}

// ClassifyScrapeError covers the whole adapter pipeline: fetch, decode,
// markup parsing and the extraction fallback.
func ClassifyScrapeError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return ErrorQuota
	}
	if errors.Is(err, httpx.ErrDecode) {
		return ErrorParsing
	}
	if kind := ClassifyFetchError(err); kind != ErrorUnknown {
		return kind
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "parse failed") ||
		strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "invalid character") {
		return ErrorParsing
	}
	return ErrorNetwork
}
