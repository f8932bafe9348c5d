// Package surface renders the session's display decisions to a terminal.
package surface

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stmh/gsc-brain-interface/internal/content"
)

var (
	colorPresenting  = lipgloss.Color("#22c55e")
	colorLocal       = lipgloss.Color("#06b6d4")
	colorPreview     = lipgloss.Color("#d97706")
	colorMaintenance = lipgloss.Color("#9ca3af")
	colorStatus      = lipgloss.Color("#dc2626")
	colorDimmed      = lipgloss.Color("#4b5563")
)

// View is what the console currently shows.
type View struct {
	Maintenance bool
	Title       string
	URL         string
	Stage       content.Stage
	Status      string
	Since       time.Time
}

// Console is a session Surface that writes one styled line per change.
// Colors are dropped automatically when the writer is not a terminal.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	view View
	now  func() time.Time

	label  lipgloss.Style
	stamp  lipgloss.Style
	status lipgloss.Style
	stages map[content.Stage]lipgloss.Style
	maint  lipgloss.Style
}

// New returns a console writing to out.
func New(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	badge := r.NewStyle().Bold(true).Padding(0, 1)
	return &Console{
		out:    out,
		now:    time.Now,
		view:   View{Maintenance: true},
		label:  r.NewStyle().Bold(true),
		stamp:  r.NewStyle().Foreground(colorDimmed),
		status: r.NewStyle().Foreground(colorStatus),
		maint:  badge.Foreground(colorMaintenance),
		stages: map[content.Stage]lipgloss.Style{
			content.StagePreview: badge.Foreground(colorPreview),
			content.StageFull:    badge.Foreground(colorPresenting),
			content.StageLocal:   badge.Foreground(colorLocal),
		},
	}
}

// Present shows c.
func (s *Console) Present(c *content.Content) {
	if c == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	title := c.Title
	if title == "" {
		title = c.URL
	}
	s.view.Maintenance = false
	s.view.Title = title
	s.view.URL = c.URL
	s.view.Stage = c.Stage
	s.view.Since = s.now()

	s.printf("%s %s %s", s.stages[c.Stage].Render(c.Stage.String()), s.label.Render(title), s.stamp.Render(c.URL))
}

// PresentMaintenance shows the maintenance display.
func (s *Console) PresentMaintenance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view.Maintenance = true
	s.view.Title, s.view.URL = "", ""
	s.view.Since = s.now()

	hint := s.view.Status
	if hint == "" {
		hint = "waiting for content server"
	}
	s.printf("%s %s", s.maint.Render("maintenance"), s.stamp.Render(hint))
}

// SetStatusText replaces the status line. An empty text clears it.
func (s *Console) SetStatusText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == s.view.Status {
		return
	}
	s.view.Status = text
	if text == "" {
		s.printf("%s", s.stamp.Render("status cleared"))
		return
	}
	s.printf("%s %s", s.label.Render("status"), s.status.Render(text))
}

// Snapshot returns the current view.
func (s *Console) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Console) printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(s.out, "%s %s\n", s.stamp.Render(s.now().Format("15:04:05")), line)
}
