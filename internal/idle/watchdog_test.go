package idle

import (
	"testing"
	"time"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestOnTickComparesAgainstBudget(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"just after input", time.Second, false},
		{"exactly budget", 180 * time.Second, false},
		{"past budget", 180*time.Second + time.Millisecond, true},
		{"far past budget", time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(180 * time.Second)
			w.OnInput(base)
			if got := w.OnTick(base.Add(tt.elapsed)); got != tt.want {
				t.Fatalf("OnTick(+%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestFiringDoesNotResetByItself(t *testing.T) {
	w := New(time.Minute)
	w.OnInput(base)

	if !w.OnTick(base.Add(2 * time.Minute)) {
		t.Fatal("expected fire")
	}
	if !w.OnTick(base.Add(2*time.Minute + time.Second)) {
		t.Fatal("watchdog should keep firing until the caller records input")
	}
}

func TestFiresOncePerIntervalWhenCallerResets(t *testing.T) {
	w := New(time.Minute)
	w.OnInput(base)

	fires := 0
	for tick := time.Duration(0); tick <= 5*time.Minute; tick += 100 * time.Millisecond {
		now := base.Add(tick)
		if w.OnTick(now) {
			fires++
			w.OnInput(now)
		}
	}
	// Fires just past 1m, 2m, 3m, 4m after each reset; exactly four intervals
	// fit in five minutes at 100ms resolution.
	if fires != 4 {
		t.Fatalf("fires = %d, want 4", fires)
	}
}

func TestFirstTickSeedsClock(t *testing.T) {
	w := New(time.Second)
	if w.OnTick(base) {
		t.Fatal("first tick without input must not fire")
	}
	if w.LastInput() != base {
		t.Fatalf("LastInput() = %v, want %v", w.LastInput(), base)
	}
	if !w.OnTick(base.Add(2 * time.Second)) {
		t.Fatal("expected fire after budget elapsed from seed")
	}
}

func TestSetBudgetAppliesOnNextTick(t *testing.T) {
	w := New(time.Hour)
	w.OnInput(base)
	now := base.Add(10 * time.Minute)
	if w.OnTick(now) {
		t.Fatal("should not fire with 1h budget")
	}

	w.SetBudget(5 * time.Minute)
	if !w.OnTick(now) {
		t.Fatal("lowered budget should fire on the next tick")
	}
	if w.Budget() != 5*time.Minute {
		t.Fatalf("Budget() = %v, want 5m", w.Budget())
	}
}

func TestZeroBudgetDisables(t *testing.T) {
	w := New(0)
	w.OnInput(base)
	if w.OnTick(base.Add(24 * time.Hour)) {
		t.Fatal("disabled watchdog fired")
	}
}

func TestClockJumpBackwardsDoesNotFire(t *testing.T) {
	w := New(time.Minute)
	w.OnInput(base)
	if w.OnTick(base.Add(-time.Hour)) {
		t.Fatal("negative elapsed time must not fire")
	}
}
