// Package player wires discovery, content loading, forwarding and the
// session controller together and runs them on one event loop.
package player

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/config"
	"github.com/stmh/gsc-brain-interface/internal/content"
	"github.com/stmh/gsc-brain-interface/internal/controlsink"
	"github.com/stmh/gsc-brain-interface/internal/discovery"
	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/forwarding"
	"github.com/stmh/gsc-brain-interface/internal/health"
	"github.com/stmh/gsc-brain-interface/internal/input"
	"github.com/stmh/gsc-brain-interface/internal/logging"
	"github.com/stmh/gsc-brain-interface/internal/osc"
	"github.com/stmh/gsc-brain-interface/internal/session"
	"github.com/stmh/gsc-brain-interface/internal/websocket"
	"github.com/stmh/gsc-brain-interface/internal/workerpool"
)

var log = logging.L("player")

// ComponentForwarding is the health component for static forwarding devices.
const ComponentForwarding = "forwarding"

const (
	inboxSize       = 256
	loadQueueSize   = 16
	shutdownTimeout = 5 * time.Second
)

type msgKind int

const (
	msgDiscovery msgKind = iota
	msgInput
	msgResult
	msgTick
	msgBudget
	msgResync
)

// msg is one inbox entry. Only the field matching kind is set.
type msg struct {
	kind      msgKind
	discovery event.Discovery
	input     event.Input
	result    content.Result
	at        time.Time
	budget    time.Duration
}

// Options are the player's collaborators. Zero values select the defaults.
type Options struct {
	Surface session.Surface
	// Input, if set, is read line by line for operator commands.
	Input   io.Reader
	Lookup  discovery.LookupFunc
	Monitor *health.Monitor
	// UserAgent is sent with content requests.
	UserAgent string
}

// Player owns the session controller. All controller calls happen on the
// goroutine running Run; everything else posts into the inbox.
type Player struct {
	cfg      *config.Config
	inbox    chan msg
	stopped  chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64

	ctrl     *session.Controller
	registry *forwarding.Registry
	sinks    *controlsink.Manager
	pool     *workerpool.Pool
	browser  *discovery.Browser
	monitor  *health.Monitor
	input    *input.Reader
	now      func() time.Time
}

// New builds a player from cfg. Static forwarding devices that cannot be
// opened are logged and skipped.
func New(cfg *config.Config, opts Options) (*Player, error) {
	if opts.Surface == nil {
		return nil, fmt.Errorf("player: no surface")
	}
	if opts.Monitor == nil {
		opts.Monitor = health.NewMonitor()
	}

	p := &Player{
		cfg:      cfg,
		inbox:    make(chan msg, inboxSize),
		stopped:  make(chan struct{}),
		registry: forwarding.NewRegistry(),
		pool:     workerpool.New(cfg.Content.LoadWorkers, loadQueueSize),
		monitor:  opts.Monitor,
		now:      time.Now,
	}

	advance := event.Key(cfg.Keys.Advance)
	p.sinks = controlsink.NewManager(p.registry, osc.Opener{Role: event.RoleControlSink}, controlsink.Options{
		AdvanceKey: advance,
		Width:      cfg.Surface.Width,
		Height:     cfg.Surface.Height,
	})

	fetcher := content.NewFetcher(content.FetcherOptions{
		Timeout:      cfg.Content.RequestTimeout,
		PreviewBytes: cfg.Content.PreviewBytes,
		MaxBytes:     cfg.Content.MaxBytes,
		UserAgent:    opts.UserAgent,
	})
	loader := content.NewAsyncLoader(fetcher, p.pool, p.postResult)
	local := content.NewLocalProbe(cfg.Content.DataFolders, cfg.Content.InterfaceFile, cfg.Content.MaxBytes)

	p.ctrl = session.New(session.Config{
		IdleBudget:    cfg.IdleTimeout,
		InterfaceFile: cfg.Content.InterfaceFile,
		AdvanceKey:    advance,
		ResetKey:      event.Key(cfg.Keys.Reset),
	}, session.Deps{
		Surface:   opts.Surface,
		Loader:    loader,
		Local:     local,
		Forwarder: p.registry,
		Sinks:     p.sinks,
		Reporter:  p.monitor,
	})

	static, err := staticAnnouncements(cfg.Discovery)
	if err != nil {
		return nil, err
	}
	p.browser = discovery.New(discovery.Options{
		Domain: cfg.Discovery.Domain,
		Services: []discovery.Service{
			{Role: event.RoleContentServer, Type: cfg.Discovery.ContentService},
			{Role: event.RoleControlSink, Type: cfg.Discovery.ControlService},
		},
		RebrowseInterval: cfg.Discovery.RebrowseInterval,
		Static:           static,
		Lookup:           opts.Lookup,
		Reporter:         p.monitor,
	}, p.PostDiscovery)

	if opts.Input != nil {
		p.input = input.NewReader(opts.Input, input.Keys{Advance: advance, Reset: event.Key(cfg.Keys.Reset)}, p.PostInput)
	}

	p.openDevices(cfg.Forwarding.Devices)
	return p, nil
}

// Registry exposes the forwarding registry for status reporting.
func (p *Player) Registry() *forwarding.Registry {
	return p.registry
}

// PostDiscovery queues a discovery event. It blocks while the inbox is full.
func (p *Player) PostDiscovery(ev event.Discovery) {
	p.post(msg{kind: msgDiscovery, discovery: ev})
}

// PostInput queues an input event. It blocks while the inbox is full.
func (p *Player) PostInput(ev event.Input) {
	if ev.Time.IsZero() {
		ev.Time = p.now()
	}
	p.post(msg{kind: msgInput, input: ev})
}

// SetIdleBudget changes the idle budget from any goroutine.
func (p *Player) SetIdleBudget(d time.Duration) {
	p.post(msg{kind: msgBudget, budget: d})
}

// Resync re-sends the control sink initialization and re-checks local
// content. Safe to call from any goroutine.
func (p *Player) Resync() {
	p.post(msg{kind: msgResync})
}

func (p *Player) postResult(res content.Result) {
	p.post(msg{kind: msgResult, result: res})
}

func (p *Player) post(m msg) {
	select {
	case p.inbox <- m:
	case <-p.stopped:
	}
}

// postTick never blocks; a tick that finds the inbox full is dropped.
func (p *Player) postTick(t time.Time) {
	select {
	case p.inbox <- msg{kind: msgTick, at: t}:
	default:
		p.dropped.Add(1)
	}
}

// Run starts discovery and the frame clock and processes events until ctx
// is done, then shuts everything down.
func (p *Player) Run(ctx context.Context) error {
	log.Info("player starting",
		"idleTimeout", p.cfg.IdleTimeout.String(),
		"frameRate", p.cfg.FrameRate,
		"contentService", p.cfg.Discovery.ContentService,
		"controlService", p.cfg.Discovery.ControlService,
	)
	p.ctrl.Start(p.now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.browser.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		p.frameClock(ctx)
	}()
	if p.input != nil {
		// Not waited for: a read on a terminal cannot be interrupted.
		go func() {
			if err := p.input.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("input reader stopped", logging.KeyError, err)
			}
		}()
	}

	interval := p.cfg.HealthLogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	healthTicker := time.NewTicker(interval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			wg.Wait()
			return nil
		case <-healthTicker.C:
			p.logHealth()
		case m := <-p.inbox:
			p.dispatch(m)
		}
	}
}

func (p *Player) dispatch(m msg) {
	switch m.kind {
	case msgDiscovery:
		p.ctrl.OnDiscoveryEvent(m.discovery)
	case msgInput:
		p.ctrl.OnInputEvent(m.input)
	case msgResult:
		p.ctrl.OnLoadResult(m.result)
	case msgTick:
		p.ctrl.OnTick(m.at)
	case msgBudget:
		p.ctrl.SetIdleBudget(m.budget)
	case msgResync:
		p.ctrl.Resync()
	}
}

func (p *Player) frameClock(ctx context.Context) {
	rate := p.cfg.FrameRate
	if rate < 1 {
		rate = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			p.postTick(t)
		}
	}
}

func (p *Player) logHealth() {
	stats := p.registry.Stats()
	failing := 0
	for _, s := range stats {
		if s.Failed > 0 && s.Delivered == 0 {
			failing++
		}
	}
	switch {
	case len(stats) == 0:
		p.monitor.Update(ComponentForwarding, health.Unknown, "no forwarding targets")
	case failing > 0:
		p.monitor.Update(ComponentForwarding, health.Degraded, fmt.Sprintf("%d of %d targets failing", failing, len(stats)))
	default:
		p.monitor.Update(ComponentForwarding, health.Healthy, fmt.Sprintf("%d targets", len(stats)))
	}

	summary := p.monitor.Summary()
	log.Info("health",
		"status", summary["status"],
		"components", summary["components"],
		logging.KeyState, p.ctrl.State().String(),
		"server", p.ctrl.Server(),
		"targets", len(stats),
		"droppedTicks", p.dropped.Load(),
	)
}

func (p *Player) shutdown() {
	p.stopOnce.Do(func() {
		log.Info("player stopping")
		close(p.stopped)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		p.pool.Shutdown(ctx)
		p.registry.Close()
	})
}

// openDevices registers the configured static forwarding devices.
func (p *Player) openDevices(devices []string) {
	for _, dev := range devices {
		target, err := OpenDevice(dev)
		if err != nil {
			log.Warn("could not open forwarding device", "device", dev, logging.KeyError, err)
			p.monitor.Update(ComponentForwarding, health.Degraded, err.Error())
			continue
		}
		if err := p.registry.Register(target); err != nil {
			log.Warn("skipping forwarding device", "device", dev, logging.KeyError, err)
			if cerr := target.Close(); cerr != nil {
				log.Debug("forwarding device close failed", "device", dev, logging.KeyError, cerr)
			}
			continue
		}
		log.Info("forwarding device added", "device", dev)
	}
}

// OpenDevice opens a static forwarding target from an osc://host:port,
// ws:// or wss:// URL.
func OpenDevice(raw string) (forwarding.Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("player: device %q: %w", raw, err)
	}
	switch u.Scheme {
	case "osc":
		host, portStr, err := net.SplitHostPort(u.Host)
		if err != nil {
			return nil, fmt.Errorf("player: device %q: %w", raw, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("player: device %q: invalid port", raw)
		}
		s, err := osc.Open(event.RoleStatic, host, uint16(port))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "ws", "wss":
		m, err := websocket.New(raw)
		if err != nil {
			return nil, err
		}
		m.Start()
		return m, nil
	}
	return nil, fmt.Errorf("player: device %q: unsupported scheme %q", raw, u.Scheme)
}

func staticAnnouncements(d config.Discovery) ([]event.Discovery, error) {
	var out []event.Discovery
	for _, s := range []struct {
		role event.Role
		addr string
	}{
		{event.RoleContentServer, d.StaticContentServer},
		{event.RoleControlSink, d.StaticControlSink},
	} {
		if s.addr == "" {
			continue
		}
		ev, err := discovery.StaticAnnouncement(s.role, s.addr)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
