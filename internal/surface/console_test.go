package surface

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/content"
)

func newTestConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	c := New(&buf)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return c, &buf
}

func TestPresentWritesTitleAndStage(t *testing.T) {
	c, buf := newTestConsole()
	c.Present(&content.Content{URL: "http://10.0.0.5:8080/interface.p3d", Stage: content.StageFull, Title: "Brain Interface"})

	out := buf.String()
	for _, want := range []string{"09:30:00", "full", "Brain Interface", "http://10.0.0.5:8080/interface.p3d"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	v := c.Snapshot()
	if v.Maintenance || v.Title != "Brain Interface" || v.Stage != content.StageFull {
		t.Fatalf("Snapshot() = %+v", v)
	}
}

func TestPresentFallsBackToURL(t *testing.T) {
	c, _ := newTestConsole()
	c.Present(&content.Content{URL: "file:///data/interface.p3d", Stage: content.StageLocal})
	if v := c.Snapshot(); v.Title != "file:///data/interface.p3d" {
		t.Fatalf("Title = %q", v.Title)
	}
	c.Present(nil)
	if v := c.Snapshot(); v.Stage != content.StageLocal {
		t.Fatalf("Present(nil) changed the view: %+v", v)
	}
}

func TestPresentMaintenanceShowsStatus(t *testing.T) {
	c, buf := newTestConsole()
	c.SetStatusText("could not read interface from http://h:1/interface.p3d")
	buf.Reset()
	c.PresentMaintenance()

	if !strings.Contains(buf.String(), "maintenance") || !strings.Contains(buf.String(), "could not read interface") {
		t.Fatalf("output = %q", buf.String())
	}
	if v := c.Snapshot(); !v.Maintenance || v.Title != "" {
		t.Fatalf("Snapshot() = %+v", v)
	}
}

func TestSetStatusTextDeduplicates(t *testing.T) {
	c, buf := newTestConsole()
	c.SetStatusText("could not get osc-device: 10.0.0.8:7000")
	c.SetStatusText("could not get osc-device: 10.0.0.8:7000")
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("wrote %d lines, want 1", n)
	}

	c.SetStatusText("")
	if !strings.Contains(buf.String(), "status cleared") || c.Snapshot().Status != "" {
		t.Fatalf("output = %q", buf.String())
	}
}
