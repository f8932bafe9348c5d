package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/workerpool"
)

const sampleDoc = `<?xml version="1.0"?>
<presentation>
  <name>Brain Interface</name>
  <slide><title>One</title></slide>
</presentation>`

func TestInterfaceURL(t *testing.T) {
	tests := []struct {
		host string
		port uint16
		want string
	}{
		{"10.0.0.5", 8080, "http://10.0.0.5:8080/interface.p3d"},
		{"fe80::1", 80, "http://[fe80::1]:80/interface.p3d"},
		{"kiosk-server.local.", 8000, "http://kiosk-server.local.:8000/interface.p3d"},
	}
	for _, tt := range tests {
		if got := InterfaceURL(tt.host, tt.port, "interface.p3d"); got != tt.want {
			t.Errorf("InterfaceURL(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		complete  bool
		wantTitle string
		wantErr   bool
	}{
		{"full document", sampleDoc, true, "Brain Interface", false},
		{"title attribute", `<presentation title="Lobby"/>`, true, "Lobby", false},
		{"truncated preview", sampleDoc[:60], false, "", false},
		{"truncated full", sampleDoc[:60], true, "", true},
		{"wrong root", `<html><body/></html>`, true, "", true},
		{"empty", ``, true, "", true},
		{"not xml", `hello`, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, err := inspect([]byte(tt.body), tt.complete)
			if (err != nil) != tt.wantErr {
				t.Fatalf("inspect() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.wantTitle != "" && title != tt.wantTitle {
				t.Fatalf("title = %q, want %q", title, tt.wantTitle)
			}
		})
	}
}

func TestFetcherPreviewAndFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interface.p3d" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleDoc))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{Timeout: time.Second, PreviewBytes: 40})
	url := srv.URL + "/interface.p3d"

	preview, err := f.Fetch(context.Background(), url, StagePreview)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Stage != StagePreview || len(preview.Body) != 40 {
		t.Fatalf("preview = stage %v, %d bytes; want preview, 40 bytes", preview.Stage, len(preview.Body))
	}

	full, err := f.Fetch(context.Background(), url, StageFull)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if full.Title != "Brain Interface" || full.Local() {
		t.Fatalf("full = %+v", full)
	}
}

func TestFetcherFailuresWrapContentUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "html") {
			w.Write([]byte("<html/>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{Timeout: time.Second})
	for _, path := range []string{"/missing.p3d", "/page.html"} {
		_, err := f.Fetch(context.Background(), srv.URL+path, StageFull)
		if !errors.Is(err, ErrContentUnavailable) {
			t.Errorf("Fetch(%s) = %v, want ErrContentUnavailable", path, err)
		}
	}
}

func TestLocalProbe(t *testing.T) {
	empty := t.TempDir()
	data := t.TempDir()
	if err := os.WriteFile(filepath.Join(data, "interface.p3d"), []byte(sampleDoc), 0644); err != nil {
		t.Fatal(err)
	}
	// A directory with the right name must not match.
	if err := os.Mkdir(filepath.Join(empty, "interface.p3d"), 0755); err != nil {
		t.Fatal(err)
	}

	p := NewLocalProbe([]string{empty, data}, "interface.p3d", 0)
	path, ok := p.Find()
	if !ok || path != filepath.Join(data, "interface.p3d") {
		t.Fatalf("Find() = %q, %v", path, ok)
	}

	c, err := p.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Local() || c.Title != "Brain Interface" || !strings.HasPrefix(c.URL, "file://") {
		t.Fatalf("Load() = %+v", c)
	}
}

func TestLocalProbeMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	p := NewLocalProbe([]string{dir}, "interface.p3d", 0)
	if _, ok := p.Find(); ok {
		t.Fatal("Find() in empty folder reported a file")
	}

	bad := filepath.Join(dir, "interface.p3d")
	os.WriteFile(bad, []byte("<presentation>"), 0644)
	if _, err := p.Load(bad); !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("Load(invalid) = %v, want ErrContentUnavailable", err)
	}
}

type stubSource struct {
	err error
}

func (s stubSource) Fetch(_ context.Context, rawURL string, stage Stage) (*Content, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Content{URL: rawURL, Stage: stage}, nil
}

func TestAsyncLoaderDeliversResults(t *testing.T) {
	pool := workerpool.New(2, 4)
	defer pool.Shutdown(context.Background())

	var mu sync.Mutex
	var results []Result
	done := make(chan struct{}, 2)
	l := NewAsyncLoader(stubSource{}, pool, func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		done <- struct{}{}
	})

	req := NewRequest("http://h:1/interface.p3d", StagePreview)
	l.LoadPreview(req)
	l.LoadFull(NewRequest("http://h:1/interface.p3d", StagePreview))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	stages := map[Stage]bool{}
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("result not ok: %+v", r)
		}
		if r.Content.Stage != r.Request.Stage {
			t.Fatalf("content stage %v != request stage %v", r.Content.Stage, r.Request.Stage)
		}
		stages[r.Request.Stage] = true
	}
	if !stages[StagePreview] || !stages[StageFull] {
		t.Fatalf("stages = %v, want preview and full", stages)
	}
}

func TestAsyncLoaderWhenPoolClosed(t *testing.T) {
	pool := workerpool.New(1, 1)
	pool.Shutdown(context.Background())

	got := make(chan Result, 1)
	l := NewAsyncLoader(stubSource{}, pool, func(r Result) { got <- r })
	l.LoadFull(NewRequest("http://h:1/interface.p3d", StageFull))

	select {
	case r := <-got:
		if !errors.Is(r.Err, ErrContentUnavailable) {
			t.Fatalf("Err = %v, want ErrContentUnavailable", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered for rejected load")
	}
}

func TestNewRequestIDsAreUnique(t *testing.T) {
	a := NewRequest("u", StagePreview)
	b := NewRequest("u", StagePreview)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("request IDs %q and %q should be distinct and non-empty", a.ID, b.ID)
	}
}
