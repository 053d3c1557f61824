// Package viewport decides when a camera change is large enough to need a
// new clustered query.
package viewport

import (
	"math"

	"github.com/alimutlu55/localchat-discovery/internal/geo"
)

// Thresholds for a significant change relative to the last fetched viewport.
type Thresholds struct {
	// Zoom is the absolute zoom delta that counts as a change.
	Zoom float64
	// PanFraction is the share of the last viewport's span, per axis, the
	// center has to move.
	PanFraction float64
}

var DefaultThresholds = Thresholds{Zoom: 0.3, PanFraction: 0.35}

// Tracker remembers the last fetched viewport of one channel. It is not
// safe for concurrent use; a view's loop owns it.
type Tracker struct {
	th     Thresholds
	last   geo.Viewport
	has    bool
	forced bool
}

func NewTracker(th Thresholds) *Tracker {
	if th.Zoom <= 0 {
		th.Zoom = DefaultThresholds.Zoom
	}
	if th.PanFraction <= 0 {
		th.PanFraction = DefaultThresholds.PanFraction
	}
	return &Tracker{th: th}
}

// ShouldFetch reports whether v differs enough from the last fetched
// viewport. First load and a forced refetch always fetch.
func (t *Tracker) ShouldFetch(v geo.Viewport) bool {
	if t.Immediate() {
		return true
	}
	if math.Abs(v.Zoom-t.last.Zoom) >= t.th.Zoom {
		return true
	}
	return t.panned(v)
}

func (t *Tracker) panned(v geo.Viewport) bool {
	prev, cur := t.last.Center(), v.Center()
	lngSpan := t.last.Bounds.Max.Lon() - t.last.Bounds.Min.Lon()
	latSpan := t.last.Bounds.Max.Lat() - t.last.Bounds.Min.Lat()

	return math.Abs(cur.Lon()-prev.Lon()) > lngSpan*t.th.PanFraction ||
		math.Abs(cur.Lat()-prev.Lat()) > latSpan*t.th.PanFraction
}

// Immediate reports whether the next fetch bypasses the debounce.
func (t *Tracker) Immediate() bool { return !t.has || t.forced }

// Force makes the next ShouldFetch return true.
func (t *Tracker) Force() { t.forced = true }

// MarkFetched records v as the viewport of a successful fetch.
func (t *Tracker) MarkFetched(v geo.Viewport) {
	t.last = v
	t.has = true
	t.forced = false
}

// Last returns the last fetched viewport, if any.
func (t *Tracker) Last() (geo.Viewport, bool) { return t.last, t.has }
