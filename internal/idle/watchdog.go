// Package idle tracks time since the last user input against a budget.
//
// The watchdog holds two timestamps and compares them on every tick.
// There is no timer to cancel; budget changes and clock jumps are handled
// by the same comparison.
package idle

import "time"

// Watchdog fires when no input has been seen for longer than its budget.
type Watchdog struct {
	budget    time.Duration
	lastInput time.Time
}

// New returns a watchdog with the given budget. A budget <= 0 disables it.
func New(budget time.Duration) *Watchdog {
	return &Watchdog{budget: budget}
}

// OnInput records a non-tick input event.
func (w *Watchdog) OnInput(t time.Time) {
	w.lastInput = t
}

// OnTick reports whether t is more than budget past the last input. Firing
// does not reset the watchdog; callers treat the reset they perform as a
// fresh input. The first tick without any prior input seeds the clock.
func (w *Watchdog) OnTick(t time.Time) bool {
	if w.lastInput.IsZero() {
		w.lastInput = t
		return false
	}
	if w.budget <= 0 {
		return false
	}
	return t.Sub(w.lastInput) > w.budget
}

// SetBudget replaces the budget. It applies from the next tick.
func (w *Watchdog) SetBudget(d time.Duration) {
	w.budget = d
}

// Budget returns the configured budget.
func (w *Watchdog) Budget() time.Duration {
	return w.budget
}

// LastInput returns the timestamp of the most recent input.
func (w *Watchdog) LastInput() time.Time {
	return w.lastInput
}
