package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBlockedByRobots = errors.New("blocked by robots.txt")
	ErrDecode          = errors.New("decode failed")

	errEmptyURL = errors.New("empty url")
)

// FetchError is a failed request to an upstream page or API. Status is 0
// when no response arrived.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.URL)
	if e.URL == "" {
		msg = "fetch error"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt might succeed.
func (e *FetchError) Retryable() bool {
	return retryableStatus(e.Status) || (e.Status == 0 && !errors.Is(e.Err, ErrBlockedByRobots))
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}
