// Package prefetch loads the rooms for a camera target before a fly
// animation reaches it and times the reveal to land just before the
// camera stops.
package prefetch

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/alimutlu55/localchat-discovery/internal/clock"
	"github.com/alimutlu55/localchat-discovery/internal/geo"
	"github.com/alimutlu55/localchat-discovery/internal/room"
)

// RevealLead is how long before the end of the animation results appear.
const RevealLead = time.Second

// Target is a camera destination.
type Target struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Viewport returns the viewport a camera at t shows on screen.
func (t Target) Viewport(screen geo.Screen) geo.Viewport {
	return geo.ViewportAt(t.Center, t.Zoom, screen)
}

// World is the fixed target of the fly-to-world action.
func World() (Target, geo.Viewport) {
	v := geo.Viewport{Bounds: geo.World, Zoom: geo.WorldZoom}
	return Target{Center: v.Center(), Zoom: geo.WorldZoom}, v
}

// ExpandTarget returns where to fly to split cluster c.
func ExpandTarget(c room.Feature, currentZoom, maxZoom float64) Target {
	return Target{
		Center: c.ExpansionBounds.Center(),
		Zoom:   geo.ExpansionZoom(geo.Span(c.ExpansionBounds), currentZoom, maxZoom),
	}
}

func RevealDelay(duration time.Duration) time.Duration {
	return max(0, duration-RevealLead)
}

// Loaded is a prefetched response waiting for its reveal time.
type Loaded struct {
	Viewport geo.Viewport
	Set      room.FeatureSet
}

// Coordinator tracks at most one prefetch. While it is active the owner
// suppresses normal debounced fetches. It is owned by a single goroutine;
// the reveal callback runs on the clock's timer goroutine and only
// carries the generation back.
type Coordinator struct {
	clock clock.Clock

	gen      uint64
	active   bool
	viewport geo.Viewport
	revealAt time.Time
	cancel   context.CancelFunc
	timer    *clock.Timer
	loaded   *Loaded
}

func New(c clock.Clock) *Coordinator {
	if c == nil {
		c = clock.Real()
	}
	return &Coordinator{clock: c}
}

// Begin cancels any previous prefetch and starts one for v. The returned
// context scopes the query.
func (c *Coordinator) Begin(parent context.Context, v geo.Viewport, duration time.Duration) (context.Context, uint64) {
	c.Cancel()
	ctx, cancel := context.WithCancel(parent)
	c.gen++
	c.active = true
	c.viewport = v
	c.revealAt = c.clock.Now().Add(RevealDelay(duration))
	c.cancel = cancel
	return ctx, c.gen
}

// Loaded stores the response of prefetch gen. It returns true when the
// reveal time has already passed and the caller should Reveal at once;
// otherwise fire(gen) is called when it is due.
func (c *Coordinator) Loaded(gen uint64, set room.FeatureSet, fire func(gen uint64)) (ready, ok bool) {
	if !c.current(gen) {
		return false, false
	}
	c.loaded = &Loaded{Viewport: c.viewport, Set: set}

	wait := c.revealAt.Sub(c.clock.Now())
	if wait <= 0 {
		return true, true
	}
	c.timer = c.clock.AfterFunc(wait, func() { fire(gen) })
	return false, true
}

// Reveal hands over the response of prefetch gen and ends it.
func (c *Coordinator) Reveal(gen uint64) (Loaded, bool) {
	if !c.current(gen) || c.loaded == nil {
		return Loaded{}, false
	}
	out := *c.loaded
	c.finish()
	return out, true
}

// Fail ends prefetch gen without a result.
func (c *Coordinator) Fail(gen uint64) bool {
	if !c.current(gen) {
		return false
	}
	c.finish()
	return true
}

// Cancel abandons the active prefetch, stopping its query and reveal.
func (c *Coordinator) Cancel() {
	if !c.active {
		return
	}
	c.finish()
	c.gen++
}

func (c *Coordinator) finish() {
	c.timer.Stop()
	c.timer = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.loaded = nil
	c.active = false
}

func (c *Coordinator) current(gen uint64) bool { return c.active && gen == c.gen }

// Active reports whether a prefetch is between Begin and its reveal or
// failure.
func (c *Coordinator) Active() bool { return c.active }

// PendingReveal reports whether a loaded response is waiting for its
// reveal time.
func (c *Coordinator) PendingReveal() bool { return c.loaded != nil }

func (c *Coordinator) Generation() uint64 { return c.gen }
