package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalProbe looks for an interface file in a list of data folders.
type LocalProbe struct {
	folders  []string
	file     string
	maxBytes int64
}

// NewLocalProbe searches folders in order for file.
func NewLocalProbe(folders []string, file string, maxBytes int64) *LocalProbe {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &LocalProbe{folders: folders, file: file, maxBytes: maxBytes}
}

// Find returns the first readable regular file named like the interface file.
func (p *LocalProbe) Find() (string, bool) {
	for _, dir := range p.folders {
		path := filepath.Join(dir, p.file)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return path, true
	}
	return "", false
}

// Load reads and validates the file at path.
func (p *LocalProbe) Load(path string) (*Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable("local file %s: %v", path, err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
	if err != nil {
		return nil, unavailable("local file %s: %v", path, err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, unavailable("local file %s: larger than %d bytes", path, p.maxBytes)
	}

	title, err := inspect(body, true)
	if err != nil {
		return nil, unavailable("local file %s: %v", path, err)
	}
	log.Info("read local interface file", "path", path)
	return &Content{URL: fileURL(path), Stage: StageLocal, Title: title, Body: body}, nil
}

func fileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("file://%s", filepath.ToSlash(path))
}
