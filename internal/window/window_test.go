package window

import (
	"testing"
	"time"

	"github.com/ObiAU/mentionwatch/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Step(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(9*time.Hour, 10*time.Second, WithClock(clock.Now)), clock
}

func TestWindowForInitialLookback(t *testing.T) {
	tr, clock := newTestTracker()

	w := tr.WindowFor("acme")

	if !w.End.Equal(clock.t) {
		t.Errorf("End = %v, want %v", w.End, clock.t)
	}
	if want := clock.t.Add(-9 * time.Hour); !w.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", w.Start, want)
	}
}

func TestWindowUnchangedWithoutAdvance(t *testing.T) {
	tr, clock := newTestTracker()

	first := tr.WindowFor("acme")
	clock.Step(10 * time.Second)
	second := tr.WindowFor("acme")

	if !first.Start.Equal(second.Start) {
		t.Errorf("start moved without advance: %v -> %v", first.Start, second.Start)
	}
	if !second.End.After(first.End) {
		t.Errorf("end did not follow the clock: %v -> %v", first.End, second.End)
	}
}

func TestAdvanceUsesFetchStartMinusInterval(t *testing.T) {
	tr, clock := newTestTracker()
	tr.WindowFor("acme")

	fetchStarted := clock.t
	clock.Step(3 * time.Second)
	tr.Advance("acme", fetchStarted)

	clock.Step(10 * time.Second)
	w := tr.WindowFor("acme")
	if want := fetchStarted.Add(-10 * time.Second); !w.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", w.Start, want)
	}
}

func TestAdvanceNeverMovesBackwards(t *testing.T) {
	tr, clock := newTestTracker()
	tr.WindowFor("acme")

	tr.Advance("acme", clock.t)
	before := tr.Snapshot()["acme"]

	tr.Advance("acme", clock.t.Add(-time.Minute))
	after := tr.Snapshot()["acme"]

	if !after.Equal(before) {
		t.Errorf("start moved backwards: %v -> %v", before, after)
	}
}

func TestStartIsMonotonicAcrossCycles(t *testing.T) {
	tr, clock := newTestTracker()
	var last time.Time

	for i := 0; i < 20; i++ {
		w := tr.WindowFor("acme")
		if w.Start.Before(last) {
			t.Fatalf("cycle %d: start decreased from %v to %v", i, last, w.Start)
		}
		if w.Start.After(w.End) {
			t.Fatalf("cycle %d: start %v after end %v", i, w.Start, w.End)
		}
		last = w.Start
		if i%3 == 0 {
			tr.Advance("acme", w.End)
		}
		clock.Step(10 * time.Second)
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	tr, clock := newTestTracker()
	tr.WindowFor("a")
	tr.WindowFor("b")

	tr.Advance("a", clock.t)

	snap := tr.Snapshot()
	if snap["a"].Equal(snap["b"]) {
		t.Errorf("advancing %q changed %q", models.TrackedAccount("a"), models.TrackedAccount("b"))
	}
	if want := clock.t.Add(-9 * time.Hour); !snap["b"].Equal(want) {
		t.Errorf("b start = %v, want %v", snap["b"], want)
	}
}

func TestEndLagKeepsEndBehindClock(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(9*time.Hour, 10*time.Second, WithClock(clock.Now), WithEndLag(10*time.Second))

	first := tr.WindowFor("acme")
	if want := clock.t.Add(-10 * time.Second); !first.End.Equal(want) {
		t.Errorf("End = %v, want %v", first.End, want)
	}
	if want := clock.t.Add(-9 * time.Hour); !first.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", first.Start, want)
	}

	fetchStarted := clock.t
	tr.Advance("acme", fetchStarted)
	clock.Step(10 * time.Second)
	second := tr.WindowFor("acme")

	if second.Start.After(first.End) {
		t.Errorf("gap between windows: first ended %v, second starts %v", first.End, second.Start)
	}
	if want := first.End.Add(-10 * time.Second); !second.Start.Equal(want) {
		t.Errorf("second Start = %v, want %v", second.Start, want)
	}
}

func TestEndLagNeverPutsStartAfterEnd(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(5*time.Second, 10*time.Second, WithClock(clock.Now), WithEndLag(10*time.Second))

	w := tr.WindowFor("acme")

	if w.Start.After(w.End) {
		t.Errorf("start %v after end %v", w.Start, w.End)
	}
}

func TestNegativeEndLagIgnored(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(time.Hour, 10*time.Second, WithClock(clock.Now), WithEndLag(-time.Minute))

	if w := tr.WindowFor("acme"); !w.End.Equal(clock.t) {
		t.Errorf("End = %v, want %v", w.End, clock.t)
	}
}
