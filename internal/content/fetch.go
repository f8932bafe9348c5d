package content

import (
	"context"
	"net/http"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/httputil"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("content")

const (
	defaultPreviewBytes = 64 * 1024
	defaultMaxBytes     = 64 * 1024 * 1024
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Timeout      time.Duration
	PreviewBytes int64
	MaxBytes     int64
	UserAgent    string
}

// Fetcher loads interface documents from a content server.
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
}

// NewFetcher returns a Fetcher with its own HTTP client.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = defaultPreviewBytes
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &Fetcher{client: httputil.NewClient(opts.Timeout), opts: opts}
}

// Fetch performs the load for stage. Preview reads a bounded prefix to prove
// the server answers with a presentation; full reads the whole document.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, stage Stage) (*Content, error) {
	fo := httputil.FetchOptions{MaxBytes: f.opts.MaxBytes, UserAgent: f.opts.UserAgent}
	complete := true
	if stage == StagePreview {
		fo.PrefixBytes = f.opts.PreviewBytes
		complete = false
	}

	body, err := httputil.Get(ctx, f.client, rawURL, fo)
	if err != nil {
		return nil, unavailable("%s load of %s: %v", stage, rawURL, err)
	}

	title, err := inspect(body, complete)
	if err != nil {
		return nil, unavailable("%s load of %s: %v", stage, rawURL, err)
	}

	return &Content{URL: rawURL, Stage: stage, Title: title, Body: body}, nil
}
