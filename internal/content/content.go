// Package content loads presentation documents for the session controller:
// over HTTP from a discovered content server, or from a local fallback file.
//
// Loading is fail-soft. Every failure wraps ErrContentUnavailable and the
// controller only ever sees a nil Content plus a reason for the status line.
package content

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/stmh/gsc-brain-interface/internal/event"
)

// ErrContentUnavailable wraps every preview, full or local load failure.
var ErrContentUnavailable = errors.New("content: unavailable")

// Stage says which kind of load produced a document.
type Stage int

const (
	StagePreview Stage = iota
	StageFull
	StageLocal
)

func (s Stage) String() string {
	switch s {
	case StagePreview:
		return "preview"
	case StageFull:
		return "full"
	case StageLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Content is a loaded presentation document. The renderer owns its
// interpretation; the controller only swaps it onto the surface.
type Content struct {
	URL   string
	Stage Stage
	Title string
	Body  []byte
}

// Local reports whether the content came from disk.
func (c *Content) Local() bool {
	return c.Stage == StageLocal
}

// Request is one asynchronous load. ID correlates the result with the
// request so results for a superseded request can be dropped.
type Request struct {
	ID    string
	URL   string
	Stage Stage
}

// NewRequest returns a request with a fresh ID.
func NewRequest(rawURL string, stage Stage) Request {
	return Request{ID: uuid.NewString(), URL: rawURL, Stage: stage}
}

// Result is delivered back to the controller for every Request.
type Result struct {
	Request Request
	Content *Content
	Err     error
}

// OK reports whether the load produced content.
func (r Result) OK() bool {
	return r.Err == nil && r.Content != nil
}

// InterfaceURL builds the interface document URL served by a content server.
func InterfaceURL(host string, port uint16, file string) string {
	u := url.URL{
		Scheme: "http",
		Host:   event.JoinAddress(host, port),
		Path:   "/" + file,
	}
	return u.String()
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrContentUnavailable, fmt.Sprintf(format, args...))
}
