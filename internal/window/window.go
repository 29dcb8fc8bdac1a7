// Package window tracks the rolling search window of every tracked account.
package window

import (
	"sync"
	"time"

	"github.com/ObiAU/mentionwatch/internal/models"
)

// Tracker owns the start cursor of each account. A cursor is created on first
// use at now-lookback and afterwards only moves forward through Advance.
//
// Windows end endLag before the current time: the search API rejects an
// end_time closer than about ten seconds to the request.
type Tracker struct {
	mu       sync.Mutex
	starts   map[models.TrackedAccount]time.Time
	lookback time.Duration
	interval time.Duration
	endLag   time.Duration
	now      func() time.Time
}

type Option func(*Tracker)

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(t *Tracker) { t.now = fn }
}

// WithEndLag ends every window d before the current time. Advance shifts the
// next start back by the same amount, so consecutive windows still overlap by
// the poll interval. Negative values are ignored.
func WithEndLag(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.endLag = d
		}
	}
}

func New(lookback, interval time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		starts:   make(map[models.TrackedAccount]time.Time),
		lookback: lookback,
		interval: interval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Now returns the tracker's notion of the current time.
func (t *Tracker) Now() time.Time {
	return t.now().UTC()
}

// WindowFor returns [start, now-endLag] for the account.
func (t *Tracker) WindowFor(account models.TrackedAccount) models.TimeWindow {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Now()
	start, ok := t.starts[account]
	if !ok {
		start = now.Add(-t.lookback)
		t.starts[account] = start
	}
	end := now.Add(-t.endLag)
	if start.After(end) {
		start = end
	}

	return models.TimeWindow{Start: start, End: end}
}

// Advance moves the account's start to fetchStartedAt minus the poll interval
// and the end lag. It must only be called after a fetch that produced
// messages. A start that would move backwards is left unchanged.
func (t *Tracker) Advance(account models.TrackedAccount, fetchStartedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := fetchStartedAt.UTC().Add(-t.endLag - t.interval)
	if cur, ok := t.starts[account]; ok && !next.After(cur) {
		return
	}
	t.starts[account] = next
}

// Snapshot returns a copy of the current start cursors.
func (t *Tracker) Snapshot() map[models.TrackedAccount]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[models.TrackedAccount]time.Time, len(t.starts))
	for k, v := range t.starts {
		out[k] = v
	}
	return out
}

// Stats reports the current start of every account's window.
func (t *Tracker) Stats() map[string]interface{} {
	out := make(map[string]interface{})
	for account, start := range t.Snapshot() {
		out[string(account)] = start.Format(time.RFC3339)
	}
	return out
}
