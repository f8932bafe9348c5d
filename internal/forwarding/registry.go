// Package forwarding fans input events out to every live outbound target.
//
// The registry is owned by the player loop: only that goroutine registers,
// removes or forwards. The mutex exists so the health reporter can take
// snapshots from elsewhere without racing the owner.
package forwarding

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/logging"
)

var log = logging.L("forwarding")

// Target is one live outbound connection that receives duplicated input.
type Target interface {
	Role() event.Role
	Address() string
	Send(ev event.Input) error
	Close() error
}

// ErrDuplicateTarget marks a register call for a role+address pair that is
// already present. It means a caller skipped ClearRole and is a bug to fix.
var ErrDuplicateTarget = errors.New("forwarding: duplicate target")

// DuplicateTargetError carries the offending pair.
type DuplicateTargetError struct {
	Role    event.Role
	Address string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("forwarding: duplicate %s target %s", e.Role, e.Address)
}

func (e *DuplicateTargetError) Is(target error) bool {
	return target == ErrDuplicateTarget
}

type entry struct {
	target    Target
	delivered uint64
	failed    uint64
}

// TargetStats is a per-target delivery count snapshot.
type TargetStats struct {
	Role      event.Role
	Address   string
	Delivered uint64
	Failed    uint64
}

// Registry holds the current targets in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds t at the end of the delivery order.
func (r *Registry) Register(t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.target.Role() == t.Role() && e.target.Address() == t.Address() {
			return &DuplicateTargetError{Role: t.Role(), Address: t.Address()}
		}
	}
	r.entries = append(r.entries, &entry{target: t})
	log.Info("target registered", logging.KeyRole, t.Role().String(), logging.KeyAddress, t.Address())
	return nil
}

// Unregister removes and closes t. Absent targets are ignored so cleanup
// can run twice during a replacement race.
func (r *Registry) Unregister(t Target) {
	r.mu.Lock()
	var removed Target
	for i, e := range r.entries {
		if e.target == t {
			removed = e.target
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if removed != nil {
		closeTarget(removed)
	}
}

// ClearRole removes and closes every target of role. All closes complete
// before ClearRole returns. Returns the number removed.
func (r *Registry) ClearRole(role event.Role) int {
	r.mu.Lock()
	var removed []Target
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.target.Role() == role {
			removed = append(removed, e.target)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.mu.Unlock()

	for _, t := range removed {
		closeTarget(t)
	}
	return len(removed)
}

// Forward delivers ev to every registered target in order. A failing target
// is logged and skipped. Returns the number of successful deliveries.
func (r *Registry) Forward(ev event.Input) int {
	r.mu.RLock()
	entries := make([]*entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	ok := 0
	for _, e := range entries {
		if err := e.target.Send(ev); err != nil {
			r.mu.Lock()
			e.failed++
			r.mu.Unlock()
			log.Debug("forward failed",
				logging.KeyRole, e.target.Role().String(),
				logging.KeyAddress, e.target.Address(),
				"kind", ev.Kind.String(),
				logging.KeyError, err,
			)
			continue
		}
		r.mu.Lock()
		e.delivered++
		r.mu.Unlock()
		ok++
	}
	return ok
}

// Count returns the number of targets registered for role.
func (r *Registry) Count(role event.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.target.Role() == role {
			n++
		}
	}
	return n
}

// Len returns the total number of targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Targets returns the registered targets in delivery order.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Target, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.target
	}
	return out
}

// Stats returns delivery counters for every registered target.
func (r *Registry) Stats() []TargetStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TargetStats, len(r.entries))
	for i, e := range r.entries {
		out[i] = TargetStats{
			Role:      e.target.Role(),
			Address:   e.target.Address(),
			Delivered: e.delivered,
			Failed:    e.failed,
		}
	}
	return out
}

// Close removes and closes all targets.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, e := range entries {
		closeTarget(e.target)
	}
}

func closeTarget(t Target) {
	if err := t.Close(); err != nil {
		log.Debug("target close failed", logging.KeyAddress, t.Address(), logging.KeyError, err)
	}
	log.Info("target removed", logging.KeyRole, t.Role().String(), logging.KeyAddress, t.Address())
}
