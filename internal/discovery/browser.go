// Package discovery turns zeroconf service announcements into
// event.Discovery values for the player.
package discovery

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/health"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("discovery")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// ComponentName is the health component the browser reports under.
const ComponentName = "discovery"

// Entry is one resolved service instance.
type Entry struct {
	Instance string
	Host     string
	IPs      []net.IP
	Port     int
	Text     map[string]string
}

// LookupFunc browses one fully qualified service type, calling add and
// remove as instances come and go, until ctx is done.
type LookupFunc func(ctx context.Context, service string, add, remove func(Entry)) error

// Service binds a DNS-SD service type to the role its instances play.
type Service struct {
	Role event.Role
	Type string
}

// Reporter receives health updates. health.Monitor satisfies it.
type Reporter interface {
	Update(name string, status health.Status, message string)
}

type Options struct {
	Domain           string
	Services         []Service
	RebrowseInterval time.Duration
	// Static events are emitted once before browsing starts.
	Static   []event.Discovery
	Lookup   LookupFunc
	Reporter Reporter

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Browser runs one lookup per service and keeps track of what is present.
type Browser struct {
	opts Options
	emit func(event.Discovery)

	mu      sync.Mutex
	present map[string]event.Discovery
}

// New returns a browser that hands every event to emit. emit is called from
// lookup goroutines, one call at a time.
func New(opts Options, emit func(event.Discovery)) *Browser {
	if opts.Domain == "" {
		opts.Domain = "local"
	}
	if opts.Lookup == nil {
		opts.Lookup = DNSSDLookup
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = initialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = maxBackoff
	}
	return &Browser{
		opts:    opts,
		emit:    emit,
		present: make(map[string]event.Discovery),
	}
}

// ServiceName returns the fully qualified browse name, e.g.
// "_p3d_http._tcp.local.".
func ServiceName(serviceType, domain string) string {
	return strings.TrimSuffix(serviceType, ".") + "." + strings.Trim(domain, ".") + "."
}

// Run emits the static events and browses until ctx is done.
func (b *Browser) Run(ctx context.Context) error {
	for _, ev := range b.opts.Static {
		log.Info("static service", logging.KeyRole, ev.Role.String(), logging.KeyAddress, ev.Address())
		b.send(ev)
	}

	if len(b.opts.Services) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for _, svc := range b.opts.Services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			b.browse(ctx, svc)
		}(svc)
	}

	if b.opts.RebrowseInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.rebrowseLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// Present returns the currently known instances ordered by role and address.
func (b *Browser) Present() []event.Discovery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Browser) snapshotLocked() []event.Discovery {
	out := make([]event.Discovery, 0, len(b.present))
	for _, ev := range b.present {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Address() < out[j].Address()
	})
	return out
}

func (b *Browser) browse(ctx context.Context, svc Service) {
	name := ServiceName(svc.Type, b.opts.Domain)
	backoff := b.opts.InitialBackoff

	for {
		b.report(health.Healthy, "browsing "+name)
		log.Info("browsing", "service", name, logging.KeyRole, svc.Role.String())

		err := b.opts.Lookup(ctx, name,
			func(e Entry) { b.added(svc, e) },
			func(e Entry) { b.removed(svc, e) },
		)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("lookup ended")
		}
		log.Warn("browse failed", "service", name, logging.KeyError, err)
		b.report(health.Degraded, fmt.Sprintf("browse %s: %v", name, err))

		jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > b.opts.MaxBackoff {
			backoff = b.opts.MaxBackoff
		}
	}
}

// rebrowseLoop re-announces every present instance flagged as a repeat. The
// session skips repeats of what it already uses and retries loading otherwise.
func (b *Browser) rebrowseLoop(ctx context.Context) {
	ticker := time.NewTicker(b.opts.RebrowseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			for _, ev := range b.snapshotLocked() {
				ev.Repeat = true
				b.emit(ev)
			}
			b.mu.Unlock()
		}
	}
}

func (b *Browser) added(svc Service, e Entry) {
	host := preferredHost(e)
	if host == "" || e.Port <= 0 || e.Port > 65535 {
		log.Warn("ignoring unresolved service instance", "instance", e.Instance, "host", e.Host, "port", e.Port)
		return
	}
	ev := event.Discovery{
		Role:     svc.Role,
		Action:   event.Appeared,
		Host:     host,
		Port:     uint16(e.Port),
		Instance: e.Instance,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.present[presenceKey(svc.Role, e.Instance)] = ev
	b.emit(ev)
}

func (b *Browser) removed(svc Service, e Entry) {
	key := presenceKey(svc.Role, e.Instance)

	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.present[key]
	if !ok {
		ev = event.Discovery{Role: svc.Role, Host: preferredHost(e), Instance: e.Instance}
		if e.Port > 0 && e.Port <= 65535 {
			ev.Port = uint16(e.Port)
		}
	}
	delete(b.present, key)
	ev.Action = event.Disappeared
	b.emit(ev)
}

func (b *Browser) send(ev event.Discovery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emit(ev)
}

func (b *Browser) report(status health.Status, msg string) {
	if b.opts.Reporter != nil {
		b.opts.Reporter.Update(ComponentName, status, msg)
	}
}

func presenceKey(role event.Role, instance string) string {
	return role.String() + "/" + instance
}

// preferredHost picks the first IPv4 address, then any address, then the
// advertised host name.
func preferredHost(e Entry) string {
	for _, ip := range e.IPs {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	if len(e.IPs) > 0 {
		return e.IPs[0].String()
	}
	return e.Host
}

// StaticAnnouncement builds an Appeared event for a configured host:port.
func StaticAnnouncement(role event.Role, addr string) (event.Discovery, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return event.Discovery{}, fmt.Errorf("discovery: static %s %q: %w", role, addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return event.Discovery{}, fmt.Errorf("discovery: static %s %q: invalid port", role, addr)
	}
	ev := event.Discovery{Role: role, Action: event.Appeared, Host: host, Port: uint16(port), Instance: "static"}
	return ev, ev.Validate()
}
