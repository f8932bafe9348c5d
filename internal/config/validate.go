package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var serviceTypeRegex = regexp.MustCompile(`^_[A-Za-z0-9][A-Za-z0-9_-]*\._(tcp|udp)$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var deviceSchemes = map[string]bool{
	"osc": true,
	"ws":  true,
	"wss": true,
}

// ValidationResult separates problems that must stop startup from values
// that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether startup must be refused.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate checks the config and returns all errors found. Unsafe values are
// clamped in place and every problem is logged as a warning.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}

// ValidateTiered checks the config. Malformed addresses and names are fatal;
// out of range numbers are clamped and reported as warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	fatal := func(format string, args ...any) { r.Fatals = append(r.Fatals, fmt.Errorf(format, args...)) }
	warn := func(format string, args ...any) { r.Warnings = append(r.Warnings, fmt.Errorf(format, args...)) }

	for key, svc := range map[string]string{
		"discovery.content_service": c.Discovery.ContentService,
		"discovery.control_service": c.Discovery.ControlService,
	} {
		if !serviceTypeRegex.MatchString(svc) {
			fatal("%s %q is not a DNS-SD service type like _name._tcp", key, svc)
		}
	}
	if c.Discovery.Domain == "" {
		warn("discovery.domain is empty, using local")
		c.Discovery.Domain = "local"
	}

	for key, addr := range map[string]string{
		"discovery.static_content_server": c.Discovery.StaticContentServer,
		"discovery.static_control_sink":   c.Discovery.StaticControlSink,
	} {
		if addr == "" {
			continue
		}
		if err := checkHostPort(addr); err != nil {
			fatal("%s %q: %w", key, addr, err)
		}
	}

	if c.Content.InterfaceFile == "" || strings.ContainsAny(c.Content.InterfaceFile, `/\`) {
		fatal("content.interface_file %q must be a plain file name", c.Content.InterfaceFile)
	}

	for _, dev := range c.Forwarding.Devices {
		u, err := url.Parse(dev)
		if err != nil {
			fatal("forwarding device %q is not a valid URL: %w", dev, err)
			continue
		}
		if !deviceSchemes[u.Scheme] {
			fatal("forwarding device %q: scheme must be osc, ws or wss", dev)
			continue
		}
		if u.Scheme == "osc" {
			if err := checkHostPort(u.Host); err != nil {
				fatal("forwarding device %q: %w", dev, err)
			}
		}
	}

	if c.IdleTimeout < 0 {
		warn("idle_timeout %s is negative, disabling the idle reset", c.IdleTimeout)
		c.IdleTimeout = 0
	}

	if c.FrameRate < 1 {
		warn("frame_rate %d is below minimum 1, clamping", c.FrameRate)
		c.FrameRate = 1
	} else if c.FrameRate > 240 {
		warn("frame_rate %d exceeds maximum 240, clamping", c.FrameRate)
		c.FrameRate = 240
	}

	if c.HealthLogInterval < 5*time.Second {
		warn("health_log_interval %s is below minimum 5s, clamping", c.HealthLogInterval)
		c.HealthLogInterval = 5 * time.Second
	}

	if c.Discovery.RebrowseInterval < 0 {
		warn("discovery.rebrowse_interval %s is negative, disabling", c.Discovery.RebrowseInterval)
		c.Discovery.RebrowseInterval = 0
	} else if c.Discovery.RebrowseInterval > 0 && c.Discovery.RebrowseInterval < 5*time.Second {
		warn("discovery.rebrowse_interval %s is below minimum 5s, clamping", c.Discovery.RebrowseInterval)
		c.Discovery.RebrowseInterval = 5 * time.Second
	}

	if c.Content.RequestTimeout < time.Second {
		warn("content.request_timeout %s is below minimum 1s, clamping", c.Content.RequestTimeout)
		c.Content.RequestTimeout = time.Second
	} else if c.Content.RequestTimeout > 5*time.Minute {
		warn("content.request_timeout %s exceeds maximum 5m, clamping", c.Content.RequestTimeout)
		c.Content.RequestTimeout = 5 * time.Minute
	}

	if c.Content.PreviewBytes < 1<<10 {
		warn("content.preview_bytes %d is below minimum 1024, clamping", c.Content.PreviewBytes)
		c.Content.PreviewBytes = 1 << 10
	}
	if c.Content.MaxBytes < c.Content.PreviewBytes {
		warn("content.max_bytes %d is below content.preview_bytes, clamping", c.Content.MaxBytes)
		c.Content.MaxBytes = c.Content.PreviewBytes
	}

	if c.Content.LoadWorkers < 1 {
		warn("content.load_workers %d is below minimum 1, clamping", c.Content.LoadWorkers)
		c.Content.LoadWorkers = 1
	} else if c.Content.LoadWorkers > 16 {
		warn("content.load_workers %d exceeds maximum 16, clamping", c.Content.LoadWorkers)
		c.Content.LoadWorkers = 16
	}

	if c.Surface.Width < 1 || c.Surface.Height < 1 {
		warn("surface size %dx%d is invalid, using 2048x1536", c.Surface.Width, c.Surface.Height)
		c.Surface.Width, c.Surface.Height = 2048, 1536
	}

	if c.Keys.Advance <= 0 {
		warn("keys.advance %d is invalid, using space", c.Keys.Advance)
		c.Keys.Advance = 0x20
	}
	if c.Keys.Reset <= 0 {
		warn("keys.reset %d is invalid, using home", c.Keys.Reset)
		c.Keys.Reset = 0xFF50
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json)", c.LogFormat)
	}

	if c.LogMaxSizeMB < 1 {
		warn("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB)
		c.LogMaxSizeMB = 1
	}
	if c.LogMaxBackups < 0 {
		warn("log_max_backups %d is negative, clamping", c.LogMaxBackups)
		c.LogMaxBackups = 0
	}

	return r
}

func checkHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
