package storage

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foundry/internal/services"
)

// httpStatusError carries the response detail for a non-2xx reply, including
// any server-provided retry delay.
type httpStatusError struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *httpStatusError) RetryAfter() time.Duration { return e.Delay }

var _ services.RetryAfterHint = (*httpStatusError)(nil)

func newStatusError(resp *http.Response, body []byte) *httpStatusError {
	delay, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
	return &httpStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Delay:      delay,
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}

// classify wraps a transport or status error with the right sentinel:
// network problems, timeouts, rate limits, and server errors are transient;
// a request the server rejected outright will not succeed on retry.
func classify(component, operation string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return services.Wrap(services.ErrTransient, component, operation, "", err)
		}
		return services.Wrap(services.ErrPermanent, component, operation, "", err)
	}
	return services.Wrap(services.ErrTransient, component, operation, "", err)
}
