package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("httputil")

// ErrTooLarge is returned when a body exceeds FetchOptions.MaxBytes.
var ErrTooLarge = errors.New("httputil: response body too large")

// FetchOptions bounds a single GET.
type FetchOptions struct {
	// MaxBytes caps the body size; larger bodies fail with ErrTooLarge.
	MaxBytes int64
	// PrefixBytes, when > 0, requests only the first PrefixBytes via a Range
	// header and truncates silently instead of failing.
	PrefixBytes int64
	UserAgent   string
}

// StatusError indicates a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NewClient returns an HTTP client with an overall request timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Get fetches url once. There is no retry: callers on the kiosk rely on the
// next discovery announcement instead.
func Get(ctx context.Context, client *http.Client, url string, opts FetchOptions) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.PrefixBytes > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", opts.PrefixBytes-1))
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	var body []byte
	switch {
	case opts.PrefixBytes > 0:
		body, err = io.ReadAll(io.LimitReader(resp.Body, opts.PrefixBytes))
	case opts.MaxBytes > 0:
		body, err = io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
		if err == nil && int64(len(body)) > opts.MaxBytes {
			return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrTooLarge, opts.MaxBytes, url)
		}
	default:
		body, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}

	log.Debug("fetched", logging.KeyURL, url, "status", resp.StatusCode, "bytes", len(body), "durationMs", time.Since(start).Milliseconds())
	return body, nil
}
