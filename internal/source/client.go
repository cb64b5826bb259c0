package source

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "tagsync/1.0"

// HTTPOptions configures the HTTP client of a source.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
}

func newClient(opts HTTPOptions, defaultBaseURL string) *resty.Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	wait := opts.RetryWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(max(opts.Retries, 0)).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(8 * wait).
		AddRetryCondition(shouldRetry)
}

func shouldRetry(res *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	code := res.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// checkResponse maps a resty result onto the error categories.
func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	switch code := res.StatusCode(); {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, code)
	case code < 200 || code > 299:
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, code)
	}
	return nil
}
