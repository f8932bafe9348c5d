// Package session is the player's state machine. It consumes discovery
// events, load results, input and frame ticks on a single goroutine and
// decides what the presentation surface shows.
package session

import (
	"errors"
	"time"

	"github.com/stmh/gsc-brain-interface/internal/content"
	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/health"
	"github.com/stmh/gsc-brain-interface/internal/idle"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("session")

// StatusWaiting is shown while no content is available.
const StatusWaiting = "waiting for http-server/interface-file"

// Health component names reported by the controller.
const (
	ComponentContent     = "content"
	ComponentControlSink = "controlsink"
)

// Surface is the rendering layer's sink for what to display.
type Surface interface {
	Present(c *content.Content)
	PresentMaintenance()
	SetStatusText(text string)
}

// Loader schedules loads without blocking. Results come back through
// Controller.OnLoadResult.
type Loader interface {
	LoadPreview(req content.Request)
	LoadFull(req content.Request)
}

// LocalFallback finds and reads the local interface file.
type LocalFallback interface {
	Find() (string, bool)
	Load(path string) (*content.Content, error)
}

// Forwarder fans input out to every forwarding target.
type Forwarder interface {
	Forward(ev event.Input) int
}

// Sinks manages the control-sink forwarding slot.
type Sinks interface {
	HandleAppeared(host string, port uint16) error
	HandleDisappeared()
	Serving(host string, port uint16) bool
	SendInit()
	SetGeometry(width, height int)
}

// Reporter receives component health updates. health.Monitor satisfies it.
type Reporter interface {
	Update(name string, status health.Status, message string)
}

// Config holds the controller's tunables.
type Config struct {
	IdleBudget    time.Duration
	InterfaceFile string
	AdvanceKey    event.Key
	ResetKey      event.Key
}

// Deps are the collaborators the controller drives. Local and Reporter may be nil.
type Deps struct {
	Surface   Surface
	Loader    Loader
	Local     LocalFallback
	Forwarder Forwarder
	Sinks     Sinks
	Reporter  Reporter
}

// screen is what the surface currently shows; it can differ from the state
// after a failed full load, which keeps the preview up.
type screen int

const (
	screenMaintenance screen = iota
	screenPreview
	screenRemote
	screenLocal
)

// Controller is not safe for concurrent use; the player loop owns it.
type Controller struct {
	cfg  Config
	deps Deps

	state    State
	screen   screen
	watchdog *idle.Watchdog

	// server is the host:port of the content server being loaded or shown.
	server  string
	host    string
	pending content.Request

	// local is read from disk once and reused for the process lifetime.
	local *content.Content
	// localErr is the read failure from the last local check, if any.
	localErr error

	now func() time.Time
}

// New returns a controller in Maintenance. Call Start before feeding events.
func New(cfg Config, deps Deps) *Controller {
	if cfg.InterfaceFile == "" {
		cfg.InterfaceFile = "interface.p3d"
	}
	if cfg.AdvanceKey == 0 {
		cfg.AdvanceKey = event.KeySpace
	}
	if cfg.ResetKey == 0 {
		cfg.ResetKey = event.KeyHome
	}
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		state:    Maintenance,
		watchdog: idle.New(cfg.IdleBudget),
		now:      time.Now,
	}
}

// State returns the current session state.
func (c *Controller) State() State {
	return c.state
}

// Server returns the address of the content server in use, if any.
func (c *Controller) Server() string {
	return c.server
}

// IdleBudget returns the watchdog budget.
func (c *Controller) IdleBudget() time.Duration {
	return c.watchdog.Budget()
}

// Start shows the maintenance display and switches to the local fallback
// file if one exists.
func (c *Controller) Start(now time.Time) {
	c.watchdog.OnInput(now)
	c.deps.Surface.SetStatusText(StatusWaiting)
	c.showMaintenance()
	c.report(ComponentContent, health.Degraded, StatusWaiting)
	c.report(ComponentControlSink, health.Unknown, "no control sink discovered")

	if local := c.localFallback(); local != nil {
		c.presentLocal(local)
	}
}

// OnDiscoveryEvent handles one service appeared/disappeared notification.
func (c *Controller) OnDiscoveryEvent(ev event.Discovery) {
	if err := ev.Validate(); err != nil {
		log.Warn("ignoring malformed discovery event", "event", ev.String(), logging.KeyError, err)
		return
	}
	if ev.Repeat {
		log.Debug("discovery event repeated", logging.KeyRole, ev.Role.String(), logging.KeyAddress, ev.Address())
	} else {
		log.Info("discovery event", logging.KeyRole, ev.Role.String(), "action", ev.Action.String(), logging.KeyAddress, ev.Address())
	}

	switch ev.Role {
	case event.RoleContentServer:
		if ev.Action == event.Appeared {
			c.contentAppeared(ev)
		} else {
			c.contentDisappeared(ev)
		}
	case event.RoleControlSink:
		if ev.Action == event.Appeared {
			c.sinkAppeared(ev)
		} else {
			c.deps.Sinks.HandleDisappeared()
			c.report(ComponentControlSink, health.Unknown, "control sink gone")
		}
	default:
		log.Debug("ignoring discovery event for unhandled role", logging.KeyRole, ev.Role.String())
	}
}

// OnInputEvent forwards ev to every target, then lets the session react.
// Forwarding happens in every state.
func (c *Controller) OnInputEvent(ev event.Input) {
	c.deps.Forwarder.Forward(ev)

	if ev.Kind == event.Resize && ev.Width > 0 && ev.Height > 0 {
		c.deps.Sinks.SetGeometry(ev.Width, ev.Height)
	}

	at := ev.Time
	if at.IsZero() {
		at = c.now()
	}
	c.watchdog.OnInput(at)
}

// OnTick advances the frame clock and runs the idle watchdog.
func (c *Controller) OnTick(t time.Time) {
	if c.watchdog.OnTick(t) {
		c.idleReset(t)
	}
}

// SetIdleBudget changes the idle budget from the next tick on.
func (c *Controller) SetIdleBudget(d time.Duration) {
	if d == c.watchdog.Budget() {
		return
	}
	log.Info("idle budget changed", "from", c.watchdog.Budget().String(), "to", d.String())
	c.watchdog.SetBudget(d)
}

// Resync re-checks for local content when nothing is shown and repeats the
// control sink initialization burst. The host calls it after waking up.
func (c *Controller) Resync() {
	if c.state == Maintenance && c.screen == screenMaintenance {
		if local := c.localFallback(); local != nil {
			c.presentLocal(local)
		}
	}
	c.deps.Sinks.SendInit()
}

// OnLoadResult consumes the outcome of a load scheduled by this controller.
// Results for anything but the pending request are stale and dropped.
func (c *Controller) OnLoadResult(res content.Result) {
	if c.state != Loading || c.pending.ID == "" || res.Request.ID != c.pending.ID {
		log.Debug("dropping stale load result", logging.KeyLoadID, res.Request.ID, logging.KeyURL, res.Request.URL)
		return
	}
	c.pending = content.Request{}

	switch res.Request.Stage {
	case content.StagePreview:
		c.previewLoaded(res)
	case content.StageFull:
		c.fullLoaded(res)
	default:
		log.Warn("unexpected load stage", "stage", res.Request.Stage.String())
	}
}

func (c *Controller) contentAppeared(ev event.Discovery) {
	addr := ev.Address()
	switch c.state {
	case PresentingRemote, Loading:
		// A repeat only retries a server that is not in use; it must not
		// pull the session over to another instance.
		if ev.Repeat {
			return
		}
		if addr == c.server {
			log.Debug("content server re-announced, nothing to do", logging.KeyAddress, addr, logging.KeyState, c.state.String())
			return
		}
		log.Info("content server moved", "from", c.server, "to", addr)
	}
	c.startLoading(ev.Host, ev.Port)
}

func (c *Controller) startLoading(host string, port uint16) {
	c.server = event.JoinAddress(host, port)
	c.host = host

	req := content.NewRequest(content.InterfaceURL(host, port, c.cfg.InterfaceFile), content.StagePreview)
	c.pending = req
	c.transition(Loading)
	logging.WithLoad(log, req.ID, req.URL).Info("reading interface")
	c.deps.Loader.LoadPreview(req)
}

func (c *Controller) previewLoaded(res content.Result) {
	if !res.OK() {
		c.deps.Surface.SetStatusText("could not read interface from " + res.Request.URL)
		c.report(ComponentContent, health.Degraded, reason(res.Err))
		if c.screen == screenLocal && c.local != nil {
			c.transition(PresentingLocal)
			return
		}
		c.transition(Maintenance)
		return
	}

	c.deps.Surface.Present(res.Content)
	c.screen = screenPreview

	full := content.NewRequest(res.Request.URL, content.StageFull)
	c.pending = full
	c.deps.Loader.LoadFull(full)
}

func (c *Controller) fullLoaded(res content.Result) {
	if !res.OK() {
		// Preview stays on screen.
		c.report(ComponentContent, health.Degraded, reason(res.Err))
		c.transition(Maintenance)
		return
	}

	c.deps.Surface.Present(res.Content)
	c.deps.Surface.SetStatusText("")
	c.screen = screenRemote
	c.transition(PresentingRemote)
	c.report(ComponentContent, health.Healthy, "presenting "+res.Content.URL)
}

func (c *Controller) contentDisappeared(ev event.Discovery) {
	if !c.isCurrentServer(ev) {
		log.Debug("ignoring disappearance of another content server", logging.KeyAddress, ev.Address(), "current", c.server)
		return
	}

	remoteOnScreen := c.screen == screenPreview || c.screen == screenRemote
	wasActive := c.state == PresentingRemote || c.state == Loading
	c.server = ""
	c.host = ""
	c.pending = content.Request{}

	if !wasActive && !remoteOnScreen {
		return
	}

	// A clean disconnect: back to maintenance, never to the local file.
	c.showMaintenance()
	c.forwardPress(c.cfg.AdvanceKey)
	c.deps.Surface.SetStatusText("")
	c.transition(Maintenance)
	c.report(ComponentContent, health.Degraded, "content server disappeared")
}

// isCurrentServer matches a disappearance against the server in use.
// Disappeared events may omit host and port.
func (c *Controller) isCurrentServer(ev event.Discovery) bool {
	if ev.Host == "" || c.server == "" {
		return true
	}
	if ev.Port == 0 {
		return ev.Host == c.host
	}
	return ev.Address() == c.server
}

func (c *Controller) sinkAppeared(ev event.Discovery) {
	if ev.Repeat && c.deps.Sinks.Serving(ev.Host, ev.Port) {
		return
	}
	if err := c.deps.Sinks.HandleAppeared(ev.Host, ev.Port); err != nil {
		c.deps.Surface.SetStatusText("could not get osc-device: " + ev.Address())
		c.report(ComponentControlSink, health.Degraded, err.Error())
		return
	}
	c.report(ComponentControlSink, health.Healthy, "forwarding to "+ev.Address())
}

func (c *Controller) idleReset(t time.Time) {
	log.Info("resetting session, idle timeout", "budget", c.watchdog.Budget().String(), logging.KeyState, c.state.String())

	c.forwardPress(c.cfg.ResetKey)
	c.forwardPress(c.cfg.AdvanceKey)
	c.watchdog.OnInput(t)
	c.pending = content.Request{}

	if local := c.localFallback(); local != nil {
		c.presentLocal(local)
		return
	}
	c.showMaintenance()
	if c.localErr == nil {
		c.deps.Surface.SetStatusText(StatusWaiting)
	}
	c.transition(Maintenance)
	c.report(ComponentContent, health.Degraded, "idle reset")
}

func (c *Controller) presentLocal(local *content.Content) {
	c.deps.Surface.Present(local)
	c.screen = screenLocal
	c.transition(PresentingLocal)
	c.report(ComponentContent, health.Degraded, "presenting local fallback "+local.URL)
}

// localFallback returns the cached local content, reading it from disk the
// first time a file is found.
func (c *Controller) localFallback() *content.Content {
	c.localErr = nil
	if c.local != nil {
		return c.local
	}
	if c.deps.Local == nil {
		return nil
	}
	path, ok := c.deps.Local.Find()
	if !ok {
		return nil
	}
	local, err := c.deps.Local.Load(path)
	if err != nil {
		log.Warn("could not read local interface file", "path", path, logging.KeyError, err)
		c.localErr = err
		c.deps.Surface.SetStatusText("could not read scene from local file " + path)
		return nil
	}
	c.local = local
	return local
}

func (c *Controller) showMaintenance() {
	c.deps.Surface.PresentMaintenance()
	c.screen = screenMaintenance
}

func (c *Controller) forwardPress(key event.Key) {
	for _, ev := range event.KeyPress(key, c.now()) {
		c.deps.Forwarder.Forward(ev)
	}
}

func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	log.Info("session state changed", "from", c.state.String(), "to", to.String(), "server", c.server)
	c.state = to
}

func (c *Controller) report(name string, status health.Status, message string) {
	if c.deps.Reporter != nil {
		c.deps.Reporter.Update(name, status, message)
	}
}

func reason(err error) string {
	if err == nil {
		return "no content"
	}
	if errors.Is(err, content.ErrContentUnavailable) {
		return err.Error()
	}
	return "load failed: " + err.Error()
}
