// Package schedule turns bursts of viewport changes into one delayed fetch.
package schedule

import (
	"time"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
)

// DelayForZoom returns the debounce window for a camera at zoom. Zoomed
// out views change more per gesture, so they wait longer.
func DelayForZoom(zoom float64) time.Duration {
	switch {
	case zoom <= 5:
		return 200 * time.Millisecond
	case zoom <= 12:
		return 150 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// Debouncer owns one cancellable timer. Each Schedule bumps a generation
// and the fire callback receives it, so the owner can drop a fire that
// raced with a later Schedule or Cancel. Methods must be called from a
// single goroutine; fire runs on the clock's timer goroutine.
type Debouncer struct {
	clock clock.Clock
	timer *clock.Timer
	gen   uint64
	armed bool
}

func NewDebouncer(c clock.Clock) *Debouncer {
	if c == nil {
		c = clock.Real()
	}
	return &Debouncer{clock: c}
}

// Schedule clears any pending timer and arms a new one.
func (d *Debouncer) Schedule(delay time.Duration, fire func(gen uint64)) uint64 {
	d.timer.Stop()
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = d.clock.AfterFunc(delay, func() { fire(gen) })
	return gen
}

// Cancel stops the pending timer. A fire already in flight is invalidated.
func (d *Debouncer) Cancel() {
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.armed = false
}

// Accept reports whether gen belongs to the latest Schedule and, if so,
// disarms the debouncer.
func (d *Debouncer) Accept(gen uint64) bool {
	if !d.armed || gen != d.gen {
		return false
	}
	d.armed = false
	d.timer = nil
	return true
}

// Pending reports whether a scheduled fire has not been accepted yet.
func (d *Debouncer) Pending() bool { return d.armed }
