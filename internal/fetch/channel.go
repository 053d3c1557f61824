package fetch

import "context"

// Channel tracks the one non-prefetch request a view may have in flight.
// Every request gets a generation; a completion is applied only if its
// generation is still current. Channel is owned by a single goroutine.
type Channel struct {
	gen      uint64
	inFlight bool
	cancel   context.CancelFunc
}

// Begin starts a request unless one is already in flight.
func (c *Channel) Begin(parent context.Context) (context.Context, uint64, bool) {
	if c.inFlight {
		return nil, 0, false
	}
	ctx, gen := c.start(parent)
	return ctx, gen, true
}

// Supersede cancels the in-flight request, if any, and starts a new one.
func (c *Channel) Supersede(parent context.Context) (context.Context, uint64) {
	c.Cancel()
	return c.start(parent)
}

func (c *Channel) start(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	c.gen++
	c.inFlight = true
	c.cancel = cancel
	return ctx, c.gen
}

// Complete reports whether gen is the current request and, if so, marks
// the channel idle.
func (c *Channel) Complete(gen uint64) bool {
	if !c.inFlight || gen != c.gen {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.inFlight = false
	return true
}

// Cancel aborts the in-flight request. Its completion will be stale.
func (c *Channel) Cancel() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.inFlight {
		c.inFlight = false
		c.gen++
	}
}

func (c *Channel) InFlight() bool     { return c.inFlight }
func (c *Channel) Generation() uint64 { return c.gen }
